package telemetry

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"warn":  LevelWarn,
		"ERROR": LevelError,
		"huh":   LevelOff,
		"":      LevelOff,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsEnabledGatesOnBothLevelAndComponent(t *testing.T) {
	tr := New()
	tr.SetLevel(LevelInfo)
	tr.EnableComponent(ComponentDispatcher)

	if !tr.IsEnabled(LevelInfo, ComponentDispatcher) {
		t.Error("expected enabled at Info/Dispatcher")
	}
	if tr.IsEnabled(LevelDebug, ComponentDispatcher) {
		t.Error("Debug is more verbose than the configured Info level, should be disabled")
	}
	if tr.IsEnabled(LevelInfo, ComponentWorker) {
		t.Error("Worker was never enabled, should be disabled")
	}
}

func TestEnableFromCSVAll(t *testing.T) {
	tr := New()
	tr.enableFromCSV("all")
	for _, c := range allComponents {
		if !tr.components[c] {
			t.Errorf("component %s not enabled by ALL", c)
		}
	}
}
