package main

import (
	"riq-studio-api/core/logger"
	"riq-studio-api/core/server"
)

func main() {
	if err := server.Run(); err != nil {
		logger.Error("run server error", err)
	}
}
