package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/okian/pepai/internal/voice"
)

// Dial implements voice.Dialer on the Live API.
func (c *Client) Dial(ctx context.Context, cfg voice.SessionConfig) (voice.Upstream, error) {
	sess, err := c.client.Live.Connect(ctx, c.liveModel, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.voiceName},
			},
		},
		SystemInstruction:        genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		Tools:                    []*genai.Tool{{FunctionDeclarations: ToolDeclarations()}},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", classify(err))
	}
	return &liveSession{sess: sess}, nil
}

type liveSession struct {
	sess *genai.Session
}

func (l *liveSession) SendAudio(_ context.Context, pcm []byte, mimeType string) error {
	return l.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: mimeType},
	})
}

func (l *liveSession) SendText(_ context.Context, text string) error {
	return l.sess.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	})
}

func (l *liveSession) SendToolResults(_ context.Context, results []voice.ToolResult) error {
	resp := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		resp = append(resp, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return l.sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: resp})
}

func (l *liveSession) Receive(context.Context) (voice.Message, error) {
	msg, err := l.sess.Receive()
	if err != nil {
		return voice.Message{}, err
	}
	return toMessage(msg), nil
}

func (l *liveSession) Close() error { return l.sess.Close() }

func toMessage(msg *genai.LiveServerMessage) voice.Message {
	var out voice.Message
	if sc := msg.ServerContent; sc != nil {
		out.Interrupted = sc.Interrupted
		out.TurnComplete = sc.TurnComplete
		if sc.InputTranscription != nil {
			out.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscript = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
					out.Audio = append(out.Audio, p.InlineData.Data...)
					out.AudioMIME = p.InlineData.MIMEType
				}
			}
		}
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, voice.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return out
}
