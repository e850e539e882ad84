package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// buildBinary compiles the service into dir
func buildBinary(t *testing.T, dir string) string {
	t.Helper()
	binaryPath := filepath.Join(dir, "tudoloc-test")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, output)
	}
	return binaryPath
}

// TestMQTTServiceStartupShutdown tests the full MQTT service lifecycle
func TestMQTTServiceStartupShutdown(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	mapPath := writeMapFile(t, tmpDir, testMap())

	configYAML := `mqtt:
  broker: "tcp://localhost:1883"
  clientId: "tudoloc-test"
  topics:
    odom: "test/odom"
    scan: "test/scan"

map:
  file: "` + mapPath + `"

poseCache: "` + filepath.Join(tmpDir, "pose.json") + `"
`
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}

	binaryPath := buildBinary(t, tmpDir)

	tests := []struct {
		name           string
		args           []string
		expectInOutput []string
		timeout        time.Duration
	}{
		{
			name: "successful startup with config",
			args: []string{"--mqtt", "--config=" + configPath},
			expectInOutput: []string{
				"Starting tudoloc service",
				"Loaded config from",
				"Service Running",
				"Subscribed topics:",
				"test/odom",
				"test/scan",
				"[MQTT] Connecting to",
				"Distance field ready",
				"Press Ctrl+C to stop",
			},
			timeout: 5 * time.Second,
		},
		{
			name: "missing config file",
			args: []string{"--mqtt", "--config=nonexistent.yaml"},
			expectInOutput: []string{
				"Starting tudoloc service",
				"failed to load config",
			},
			timeout: 2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, binaryPath, tt.args...)
			output, err := cmd.CombinedOutput()
			outputStr := string(output)

			for _, expected := range tt.expectInOutput {
				if !strings.Contains(outputStr, expected) {
					t.Errorf("Expected output to contain '%s', but it didn't.\nFull output:\n%s",
						expected, outputStr)
				}
			}

			if strings.Contains(tt.name, "missing") && err == nil {
				t.Error("Expected command to fail, but it succeeded")
			}
		})
	}
}

// TestMQTTServiceSignalHandling tests SIGINT handling and the pose cache
// written on the way out
func TestMQTTServiceSignalHandling(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	mapPath := writeMapFile(t, tmpDir, testMap())
	binaryPath := buildBinary(t, tmpDir)

	cmd := exec.Command(binaryPath, "--http", "--http-port", "18089", "--map", mapPath,
		"--config", filepath.Join(tmpDir, "none.yaml"))
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}

	// Give it time to start
	time.Sleep(2 * time.Second)

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Logf("Failed to send SIGINT (process may have already exited): %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Service exited with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Service did not shut down within timeout")
		if err := cmd.Process.Kill(); err != nil {
			t.Logf("Failed to kill process: %v", err)
		}
	}
}

// TestMQTTServiceFieldStats runs the offline distance field check
func TestMQTTServiceFieldStats(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	mapPath := writeMapFile(t, tmpDir, testMap())
	binaryPath := buildBinary(t, tmpDir)

	output, err := exec.Command(binaryPath, "--field-stats", "--map", mapPath,
		"--config", filepath.Join(tmpDir, "none.yaml")).CombinedOutput()
	if err != nil {
		t.Fatalf("field stats failed: %v\n%s", err, output)
	}
	if !strings.Contains(string(output), "36 occupied") {
		t.Errorf("unexpected output:\n%s", output)
	}
}
