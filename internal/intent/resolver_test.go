package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/harvestflow/harvestflow/internal/genai"
	"github.com/harvestflow/harvestflow/internal/models"
)

func TestResolveProduct(t *testing.T) {
	r := NewResolver(genai.NewMockClient("product"))
	res := r.Resolve(context.Background(), "I want to list my corn harvest")
	if res.Intent != models.IntentProduct {
		t.Errorf("expected product, got %s", res.Intent)
	}
	if res.FellBack {
		t.Error("valid classification should not report fallback")
	}
}

func TestResolvePost(t *testing.T) {
	r := NewResolver(genai.NewMockClient("post"))
	res := r.Resolve(context.Background(), "advertise my listed mangoes")
	if res.Intent != models.IntentPost {
		t.Errorf("expected post, got %s", res.Intent)
	}
}

func TestResolveParsesFirstToken(t *testing.T) {
	// Models sometimes answer with extra prose despite instructions.
	r := NewResolver(genai.NewMockClient("  Post \nbecause the user mentioned an existing listing"))
	res := r.Resolve(context.Background(), "post about my cotton")
	if res.Intent != models.IntentPost {
		t.Errorf("expected post from first token, got %s", res.Intent)
	}
	if res.FellBack {
		t.Error("should not fall back when first token is valid")
	}
}

func TestResolveFallsBackOnError(t *testing.T) {
	mock := &genai.MockClient{Err: errors.New("service unavailable")}
	r := NewResolver(mock)
	res := r.Resolve(context.Background(), "anything")
	if res.Intent != DefaultIntent {
		t.Errorf("expected default intent, got %s", res.Intent)
	}
	if !res.FellBack {
		t.Error("fallback flag should be set on classifier error")
	}
}

func TestResolveFallsBackOnUnknownToken(t *testing.T) {
	r := NewResolver(genai.NewMockClient("story"))
	res := r.Resolve(context.Background(), "anything")
	if res.Intent != DefaultIntent || !res.FellBack {
		t.Errorf("expected default intent with fallback flag, got %+v", res)
	}
}

func TestResolveFallsBackOnEmptyResponse(t *testing.T) {
	r := NewResolver(genai.NewMockClient(""))
	res := r.Resolve(context.Background(), "anything")
	if res.Intent != DefaultIntent || !res.FellBack {
		t.Errorf("expected default intent with fallback flag, got %+v", res)
	}
}
