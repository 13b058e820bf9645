// cmd/stratadrive/main.go
//
// Entry point for the stratadrive service. All real wiring lives in
// internal/app/bootstrap; this just hands the lifecycle hooks to
// WAFFLE.
package main

import (
	"context"

	"github.com/dalemusser/stratadrive/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	app.Run(context.Background(), bootstrap.Hooks)
}
