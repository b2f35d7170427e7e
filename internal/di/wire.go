//go:build wireinject

package di

import (
	"github.com/google/wire"

	"spawnme/internal/app"
)

// InitializeApp wires the application components together. The returned
// cleanup closes the delivery sinks, the store and the log file.
func InitializeApp(cfgPath string, mode app.Mode, stdio app.IO) (*app.App, func(), error) {
	wire.Build(app.ProviderSet)
	return nil, nil, nil
}
