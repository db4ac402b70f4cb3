package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harvestflow/harvestflow/internal/engine"
	"github.com/harvestflow/harvestflow/internal/models"
	"github.com/harvestflow/harvestflow/internal/speech"
	"github.com/harvestflow/harvestflow/internal/util"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10

	// maxAudioFrameBytes caps inbound voice recordings.
	maxAudioFrameBytes = 10 << 20
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsInbound is a text frame from the client. Voice input arrives as binary
// frames instead and carries no envelope.
type wsInbound struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	Language string `json:"language,omitempty"`
}

// wsOutbound is a frame pushed to the client.
type wsOutbound struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id,omitempty"`
	AssistantText string `json:"assistant_text,omitempty"`
	CurrentURL    string `json:"current_url,omitempty"`
	NextFieldKey  string `json:"next_field_key,omitempty"`
	Done          bool   `json:"done,omitempty"`
	Transcript    string `json:"transcript,omitempty"`
	Language      string `json:"language,omitempty"`
	// Audio is base64 WAV of the synthesized reply, present only for voice
	// turns with a working speech pipeline.
	Audio   string `json:"audio,omitempty"`
	Message string `json:"message,omitempty"`
}

// realtimeHandler runs a conversation over a WebSocket. Each connection owns
// a fresh session; text frames run text turns, binary frames are treated as
// recorded audio and go through the speech pipeline when one is configured.
func (s *Server) realtimeHandler(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("clientID")
	if strings.TrimSpace(clientID) == "" {
		http.Error(w, "clientID is required", http.StatusBadRequest)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Server.realtimeHandler: websocket upgrade failed", "clientID", clientID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxAudioFrameBytes)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		slog.Error("Server.realtimeHandler: failed to set read deadline", "clientID", clientID, "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	sessionID := util.GenerateSessionID()
	state := models.NewConversationState(sessionID)
	if err := s.st.SaveSession(ctx, state); err != nil {
		slog.Error("Server.realtimeHandler: failed to create session", "clientID", clientID, "error", err)
		pushWS(writeCh, wsOutbound{Type: "error", Message: "failed to create session"})
		cancel()
		<-writerDone
		return
	}
	slog.Info("Server.realtimeHandler: client connected", "clientID", clientID, "sessionID", sessionID)
	pushWS(writeCh, wsOutbound{Type: "connected", SessionID: sessionID})

	// clientLang is the language replies are translated and spoken in. It
	// follows the most recent transcription or explicit text-frame hint.
	clientLang := speech.DefaultLanguage

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			slog.Info("Server.realtimeHandler: client disconnected", "clientID", clientID, "sessionID", sessionID)
			cancel()
			<-writerDone
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var in wsInbound
			if err := json.Unmarshal(payload, &in); err != nil {
				pushWS(writeCh, wsOutbound{Type: "error", Message: "invalid JSON frame"})
				continue
			}
			switch strings.ToLower(strings.TrimSpace(in.Type)) {
			case "ping":
				pushWS(writeCh, wsOutbound{Type: "pong"})
			case "text":
				if in.Language != "" {
					clientLang = in.Language
				}
				s.runRealtimeTurn(ctx, writeCh, state, in.Message, clientLang, false)
			default:
				pushWS(writeCh, wsOutbound{Type: "error", Message: "unsupported frame type"})
			}
		case websocket.BinaryMessage:
			if s.speech == nil {
				pushWS(writeCh, wsOutbound{Type: "error", Message: "voice input is not available"})
				continue
			}
			pushWS(writeCh, wsOutbound{Type: "status", Message: "processing_stt"})
			tr, err := s.speech.Transcribe(ctx, payload)
			if err != nil {
				slog.Error("Server.realtimeHandler: transcription failed", "sessionID", sessionID, "error", err)
				pushWS(writeCh, wsOutbound{Type: "error", Message: "could not understand the audio, please try again"})
				continue
			}
			clientLang = tr.LanguageCode
			pushWS(writeCh, wsOutbound{Type: "transcript", Transcript: tr.Text, Language: tr.LanguageCode})
			s.runRealtimeTurn(ctx, writeCh, state, tr.Text, clientLang, true)
		}
	}
}

// runRealtimeTurn executes one engine turn for the WebSocket session and
// pushes the reply, translated and optionally synthesized into the client's
// language. Speech failures degrade the reply to English text; they never
// fail the turn.
func (s *Server) runRealtimeTurn(ctx context.Context, writeCh chan wsOutbound, state *models.ConversationState, userText, clientLang string, wantAudio bool) {
	pushWS(writeCh, wsOutbound{Type: "status", Message: "thinking"})

	var result *engine.TurnResult
	if state.Finalized {
		result = &engine.TurnResult{
			AssistantText: engine.AlreadyCompleteNotice(state),
			CurrentURL:    state.CurrentURL,
			Done:          true,
		}
	} else {
		result = s.eng.ProcessTurn(ctx, state, userText)
		if result.IntentFellBack {
			slog.Warn("Server.runRealtimeTurn: intent classification fell back to default", "sessionID", state.ID, "intent", state.Intent)
		}
		if err := s.st.SaveSession(ctx, state); err != nil {
			slog.Error("Server.runRealtimeTurn: failed to persist session", "sessionID", state.ID, "error", err)
			pushWS(writeCh, wsOutbound{Type: "error", Message: "failed to persist session"})
			return
		}
	}

	replyText := result.AssistantText
	replyLang := speech.DefaultLanguage
	if s.speech != nil && clientLang != speech.DefaultLanguage {
		translated, err := s.speech.Translate(ctx, replyText, speech.DefaultLanguage, clientLang)
		if err != nil {
			slog.Error("Server.runRealtimeTurn: translation failed, replying in default language", "sessionID", state.ID, "targetLang", clientLang, "error", err)
		} else {
			replyText = translated
			replyLang = clientLang
		}
	}

	out := wsOutbound{
		Type:          "assistant",
		SessionID:     state.ID,
		AssistantText: replyText,
		CurrentURL:    result.CurrentURL,
		NextFieldKey:  result.NextFieldKey,
		Done:          result.Done,
		Language:      replyLang,
	}

	if wantAudio && s.speech != nil {
		pushWS(writeCh, wsOutbound{Type: "status", Message: "processing_tts"})
		audio, err := s.speech.Synthesize(ctx, replyText, replyLang)
		if err != nil {
			slog.Error("Server.runRealtimeTurn: synthesis failed, sending text only", "sessionID", state.ID, "error", err)
		} else {
			out.Audio = base64.StdEncoding.EncodeToString(audio)
		}
	}

	pushWS(writeCh, out)
}

// pushWS enqueues a frame without blocking the reader; under backpressure the
// oldest queued frame is dropped to make room.
func pushWS(writeCh chan wsOutbound, out wsOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
