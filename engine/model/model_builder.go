package model

import "go.uber.org/zap"

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithName is an option builder that sets the name of the Model. Buffer labels are derived from it.
//
// Parameters:
//   - name: the model identifier
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithTextureLoader is an option builder that sets how material textures are loaded. Without it the model has
// no textures.
//
// Parameters:
//   - loader: the texture loader, usually the device's LoadTexture
//
// Returns:
//   - ModelBuilderOption: a function that applies the loader option to a model
func WithTextureLoader(loader TextureLoader) ModelBuilderOption {
	return func(m *model) {
		m.textureLoader = loader
	}
}

// WithLogger is an option builder that sets the logger of the Model.
func WithLogger(logger *zap.Logger) ModelBuilderOption {
	return func(m *model) {
		m.logger = logger
	}
}
