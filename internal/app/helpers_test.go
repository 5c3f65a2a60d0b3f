package app

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
)

const testSeedYAML = `
products:
  - id: p-lamp
    name: Desk Lamp
    price: "100.00"
    quantity: 2
  - id: p-ebook
    name: E-book
    price: "9.99"
users:
  - id: u-ann
    name: Ann
`

// quietLogger возвращает логгер, который не пишет в вывод тестов.
func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "app-test")
}

// writeSeedFile кладёт YAML-сид во временную директорию теста.
func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}
