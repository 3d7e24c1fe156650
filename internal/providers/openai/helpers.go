package openai

import "github.com/room4-2/voxcore/internal/registry"

func stringField(cfg registry.ProviderConfig, key string) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
