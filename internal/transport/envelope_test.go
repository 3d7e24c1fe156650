package transport

import "testing"

func TestUnmarshalClientEnvelopeDecodesAudioPayload(t *testing.T) {
	raw := []byte(`{"type":"audio","payload":{"data":"AQID","sample_rate":16000}}`)
	env, err := UnmarshalClientEnvelope(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeAudio {
		t.Fatalf("expected type %q, got %q", TypeAudio, env.Type)
	}

	var p AudioPayload
	if err := DecodePayload(env, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Data != "AQID" || p.SampleRate != 16000 {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestUnmarshalClientEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalClientEnvelope([]byte(`not json`)); err == nil {
		t.Fatal("expected error decoding malformed envelope")
	}
}

func TestMarshalEnvelopeRoundTripsServerEnvelope(t *testing.T) {
	env := NewTextMessage("session-1", "hello", true)
	data, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := UnmarshalClientEnvelope(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeText {
		t.Fatalf("expected type %q, got %q", TypeText, decoded.Type)
	}

	var p TextPayload
	if err := DecodePayload(decoded, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Text != "hello" || !p.IsPartial {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestErrorAndStatusMessageConstructors(t *testing.T) {
	errEnv := NewErrorMessage("s1", ErrCodeRateLimited, "slow down")
	if errEnv.Type != TypeError {
		t.Fatalf("expected error type, got %q", errEnv.Type)
	}
	payload, ok := errEnv.Payload.(ErrorPayload)
	if !ok || payload.Code != ErrCodeRateLimited {
		t.Fatalf("unexpected error payload: %#v", errEnv.Payload)
	}

	statusEnv := NewStatusMessage("s1", "listening", "")
	sp, ok := statusEnv.Payload.(StatusPayload)
	if !ok || sp.Status != "listening" {
		t.Fatalf("unexpected status payload: %#v", statusEnv.Payload)
	}
}
