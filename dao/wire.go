package dao

import (
	"github.com/google/wire"
)

var ProviderSet = wire.NewSet(
	NewStore,
	wire.Bind(new(Repository), new(*Store)),
)
