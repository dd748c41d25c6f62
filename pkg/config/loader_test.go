package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	var out ViewerConfig
	if err := LoadConfigEnv(&out); err != nil {
		t.Fatal(err)
	}
	if out.Pipeline.MinInterval != 33*time.Millisecond {
		t.Errorf("min interval %v", out.Pipeline.MinInterval)
	}
	if out.Pipeline.SlotCapacity != 3 || out.Broadcast.Quality != 85 || out.Server.Address != ":8080" {
		t.Errorf("wrong defaults %+v", out)
	}
	if out.Pipeline.ExportOnly || out.Pipeline.StayFrozen {
		t.Errorf("live broadcast with auto live is the default")
	}
}

func TestConfigEnv(t *testing.T) {
	var out ViewerConfig

	t.Setenv("EDGEVIEWER_PIPELINE_MININTERVAL", "20ms")
	t.Setenv("EDGEVIEWER_CAMERA_SOURCE", "dir")
	t.Setenv("EDGEVIEWER_EXPORT_S3_BUCKET", "shots")

	if err := LoadConfigEnv(&out); err != nil {
		t.Fatal(err)
	}
	if out.Pipeline.MinInterval != 20*time.Millisecond {
		t.Errorf("%v is not 20ms", out.Pipeline.MinInterval)
	}
	if out.Camera.Source != "dir" {
		t.Errorf("%v is not dir", out.Camera.Source)
	}
	if out.Export.S3.Bucket != "shots" || out.Export.HasS3() {
		t.Errorf("unexpected s3 config %+v", out.Export.S3)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	conf := "pipeline:\n  mode: grayscale\n  exportOnly: true\ncamera:\n  fps: 15\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := NewViewerConfig([]string{"--conf", dir, "--debug", "--address", ":9000"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Pipeline.Mode != "grayscale" || !out.Pipeline.ExportOnly || out.Camera.Fps != 15 {
		t.Errorf("file values weren't loaded %+v", out.Pipeline)
	}
	if !out.Debug || out.Server.Address != ":9000" {
		t.Errorf("flags weren't applied")
	}
	if out.Camera.Width != 640 {
		t.Errorf("defaults weren't applied")
	}
}

func TestParseFlags(t *testing.T) {
	var out ViewerConfig
	if err := LoadConfigEnv(&out); err != nil {
		t.Fatal(err)
	}
	if err := out.ParseFlags([]string{"--mode", "RAW", "--camera", "dir"}); err != nil {
		t.Fatal(err)
	}
	out.fixValues()
	if err := out.Validate(); err != nil {
		t.Fatal(err)
	}
	if out.Pipeline.Mode != "raw" || out.Camera.Source != "dir" {
		t.Errorf("flags weren't applied %v %v", out.Pipeline.Mode, out.Camera.Source)
	}
}

func TestValidate(t *testing.T) {
	var out ViewerConfig
	if err := LoadConfigEnv(&out); err != nil {
		t.Fatal(err)
	}
	out.Pipeline.Mode = "sepia"
	out.Camera.Source = "usb"
	if err := out.Validate(); err == nil {
		t.Errorf("expected an error")
	}
}

func TestConfPath(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: nil, want: ""},
		{args: []string{"--debug", "--conf", "x"}, want: "x"},
		{args: []string{"--conf=y", "--unknown", "1"}, want: "y"},
	}
	for _, test := range tests {
		if got := confPath(test.args); got != test.want {
			t.Errorf("%v: expected %q, got %q", test.args, test.want, got)
		}
	}
}
