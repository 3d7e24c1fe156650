package whisper

import "github.com/room4-2/voxcore/internal/registry"

// Register wires the local whisper.cpp STT adapter into reg under the
// "whisper" provider name. Registration loads the model file eagerly, so
// call it once per process with the configured model_path.
func Register(reg *registry.Registry, cfg registry.ProviderConfig) error {
	inst, err := NewSTT(cfg)
	if err != nil {
		return err
	}
	reg.Register(registry.KindSTT, "whisper", func(registry.ProviderConfig) (any, error) {
		return inst, nil
	})
	return nil
}
