package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nocops/itsm-agent/internal/logger"
	"github.com/nocops/itsm-agent/internal/mocks"
)

// Serves a scripted LLM and stand-in backends for local runs:
//
//	OPENAI_API_BASE=http://localhost:8001/v1
//	RAG_SERVER_URL=http://localhost:8001/get_suggestion
//	ESDB_URL=http://localhost:8001/esdb
//	STARDUST_API_URL=http://localhost:8001/v1
func main() {
	port := flag.String("port", "8001", "Port to run the server on")
	flag.Parse()

	log, err := logger.New("info", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log = log.WithComponent("mockserver")

	log.Info("Mock backends listening on :%s", *port)
	if err := mocks.NewBackendRouter().Run(":" + *port); err != nil {
		log.WithError(err).Error("Mock server stopped")
		os.Exit(1)
	}
}
