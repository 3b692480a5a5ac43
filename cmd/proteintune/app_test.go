package main

import (
	"bytes"
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/proteintune/internal/plan"
)

var (
	stageOneConfig = filepath.Join("..", "..", "configs", "proteinchat_stage1.yaml")
	stageTwoConfig = filepath.Join("..", "..", "configs", "proteinchat_stage2.yaml")
)

func resetFlags() {
	configPath, baseDir, logLevel, logFormat, runID = "", "", "", "", ""
	skipPathChecks, debug, jsonOutput, levelExplicit = false, false, false, false
}

// runApp runs the CLI with args and returns what it wrote to stdout and
// stderr. Exit codes are captured instead of terminating the test binary.
func runApp(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	resetFlags()
	var out, errOut bytes.Buffer
	code := 0
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(ctx context.Context, cmd *cli.Command, err error) {
		code = exitCode(err)
	}
	base := []string{"proteintune", "--log-format", "json", "--base-dir", t.TempDir(), "--skip-path-checks"}
	if err := app.Run(context.Background(), append(base, args...)); err != nil && code == 0 {
		code = exitCode(err)
		errOut.WriteString(err.Error())
	}
	return out.String(), errOut.String(), code
}

func TestValidateShippedConfigs(t *testing.T) {
	for _, tc := range []struct {
		path  string
		stage string
	}{
		{stageOneConfig, "stage1"},
		{stageTwoConfig, "stage2"},
	} {
		out, errOut, code := runApp(t, "validate", tc.path)
		if code != 0 {
			t.Fatalf("validate %s: exit %d stderr=%s", tc.path, code, errOut)
		}
		if !strings.Contains(out, "ok ("+tc.stage) || !strings.Contains(out, "effective batch size 8") {
			t.Fatalf("unexpected validate output: %q", out)
		}
	}
}

func TestValidateReportsViolations(t *testing.T) {
	_, errOut, code := runApp(t, "validate", filepath.Join("testdata", "conflict.yaml"))
	if code != exitInvalid {
		t.Fatalf("expected exit %d, got %d stderr=%s", exitInvalid, code, errOut)
	}
	for _, want := range []string{"stage_conflict_error", "range_error", "run.max_epoch"} {
		if !strings.Contains(errOut, want) {
			t.Fatalf("stderr missing %q: %s", want, errOut)
		}
	}
}

func TestValidateNamesDecodeField(t *testing.T) {
	_, errOut, code := runApp(t, "validate", filepath.Join("testdata", "bad_epoch.yaml"))
	if code != exitInvalid {
		t.Fatalf("expected exit %d, got %d stderr=%s", exitInvalid, code, errOut)
	}
	if !strings.Contains(errOut, "run.max_epoch") || strings.Contains(errOut, "(document)") {
		t.Fatalf("decode error should name the field: %s", errOut)
	}
}

func TestPathErrorsUseBaseDir(t *testing.T) {
	resetFlags()
	var out, errOut bytes.Buffer
	code := 0
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(ctx context.Context, cmd *cli.Command, err error) { code = exitCode(err) }
	err := app.Run(context.Background(), []string{"proteintune", "--log-format", "json", "--base-dir", t.TempDir(), "validate", stageOneConfig})
	if err != nil && code == 0 {
		code = exitCode(err)
	}
	if code != exitInvalid || !strings.Contains(errOut.String(), "path_error") {
		t.Fatalf("expected path errors against an empty base dir, got exit %d stderr=%s", code, errOut.String())
	}
}

func TestInspectJSON(t *testing.T) {
	out, errOut, code := runApp(t, "inspect", "--json", stageTwoConfig)
	if code != 0 {
		t.Fatalf("inspect: exit %d stderr=%s", code, errOut)
	}
	var s summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode inspect output: %v\n%s", err, out)
	}
	if s.Stage != "stage2" || !s.DeclaredStage || !slices.Equal(s.Trainable, []string{plan.ModuleStrEncoder, plan.ModuleStrProjection, plan.ModuleLlama}) {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.TotalSteps != 50000 || s.EffectiveBatchSize != 8 {
		t.Fatalf("unexpected step accounting: %+v", s)
	}
}

func TestInspectText(t *testing.T) {
	out, errOut, code := runApp(t, "inspect", stageOneConfig)
	if code != 0 {
		t.Fatalf("inspect: exit %d stderr=%s", code, errOut)
	}
	for _, want := range []string{"stage:           stage1", "protein_encoder, str_encoder, glm_llama_proj, str_llama_proj", "dataset:         seq [train]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderFormats(t *testing.T) {
	out, errOut, code := runApp(t, "render", stageTwoConfig)
	if code != 0 {
		t.Fatalf("render yaml: exit %d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, "stage: 2") || !strings.Contains(out, "lr_sched: linear_warmup_cosine_lr") {
		t.Fatalf("unexpected yaml:\n%s", out)
	}

	out, errOut, code = runApp(t, "render", "--format", "json", stageTwoConfig)
	if code != 0 {
		t.Fatalf("render json: exit %d stderr=%s", code, errOut)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if doc["model"]["stage"] != float64(2) {
		t.Fatalf("unexpected model section: %v", doc["model"])
	}

	_, _, code = runApp(t, "render", "--format", "toml", stageTwoConfig)
	if code != exitFailure {
		t.Fatalf("unknown format: expected exit %d, got %d", exitFailure, code)
	}
}

func TestPlanCommand(t *testing.T) {
	out, errOut, code := runApp(t, "plan", "--run-id", "run-42", stageTwoConfig)
	if code != 0 {
		t.Fatalf("plan: exit %d stderr=%s", code, errOut)
	}
	var p plan.Plan
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, out)
	}
	if p.RunID != "run-42" || filepath.Base(p.RunDir) != "run-42" {
		t.Fatalf("unexpected run identity: %+v", p)
	}
	if p.Adapter == nil || len(p.Checkpoints) != 1 || p.Checkpoints[0].Field != "model.stage1_ckpt" {
		t.Fatalf("unexpected plan: %+v", p)
	}
}

func TestScheduleCommand(t *testing.T) {
	out, errOut, code := runApp(t, "schedule", "--epochs", "2", "--every", "2500", stageOneConfig)
	if code != 0 {
		t.Fatalf("schedule: exit %d stderr=%s", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// header, column names, two samples per epoch
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "# linear_warmup_cosine_lr") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[2], "1.0000e-06") {
		t.Fatalf("first sample should start at warmup_lr: %q", lines[2])
	}
}

func TestVersionJSON(t *testing.T) {
	out, _, code := runApp(t, "version", "--json")
	if code != 0 {
		t.Fatalf("version: exit %d", code)
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode version: %v\n%s", err, out)
	}
	if info["version"] == "" {
		t.Fatalf("missing version: %v", info)
	}
}

func TestMain(m *testing.M) {
	cli.OsExiter = func(int) {}
	m.Run()
}
