package gemini

import (
	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/registry"
)

func stringField(cfg registry.ProviderConfig, key string) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func errorFrame(trace frame.TraceID, port string, err error) frame.ErrorFrame {
	return frame.NewErrorFrame(trace, port, frame.ErrProviderTransient, true, err.Error())
}
