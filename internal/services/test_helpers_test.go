package services_test

import (
	"os"
	"testing"

	"github.com/folio/contact-relay/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{
		Level:       "error",
		Environment: "development",
		ServiceName: "contact-relay-test",
	}); err != nil {
		panic(err)
	}
	code := m.Run()
	logger.Sync()
	os.Exit(code)
}
