package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/plan"
)

const stageOneDoc = `model:
  arch: proteinchat
  model_type: pretrain_vicuna
  freeze_protein_encoder: False
  freeze_lp: False
  freeze_llama: True
  llama_model: weights/vicuna-13b
  prompt: ""
  max_txt_len: 256
  end_sym: "###"
  low_resource: False
  embedding_agg: 1
datasets:
  seq:
    data_type: protein
    build_info:
      train:
        storage: data/qa_all.json
run:
  task: protein_text_pretrain
  lr_sched: linear_warmup_cosine_lr
  init_lr: 1e-4
  min_lr: 1e-5
  warmup_lr: 1e-6
  accum_grad_iters: 8
  weight_decay: 0.05
  max_epoch: 10
  iters_per_epoch: 5000
  batch_size_train: 1
  batch_size_eval: 1
  num_workers: 12
  warmup_steps: 5000
  seed: 42
  output_dir: output/proteinchat_stage1
  amp: True
  resume_ckpt_path: null
  evaluate: False
  train_splits: ["train"]
  device: cuda
  world_size: 2
  dist_url: "env://"
  distributed: True
`

func writeConfig(t *testing.T, path, doc string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "train.yaml")
	writeConfig(t, path, stageOneDoc)
	holder, err := config.NewHolder(path, nil, config.WithBaseDir(dir), config.WithoutPathChecks())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	return NewServer(holder, plan.WithoutCheckpointStat()), path
}

func newTestEcho(t *testing.T) (*echo.Echo, string) {
	t.Helper()
	server, path := newTestServer(t)
	e := echo.New()
	server.Register(e)
	return e, path
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v body=%s", err, rec.Body.String())
	}
	return out
}

func TestHealthAndStage(t *testing.T) {
	t.Parallel()

	e, path := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: got %d body=%s", rec.Code, rec.Body.String())
	}
	health := decode[HealthResponse](t, rec)
	if health.Status != "ok" || health.ConfigPath != path || health.Stage != "stage1" {
		t.Fatalf("unexpected health response: %+v", health)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/stage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stage status: got %d body=%s", rec.Code, rec.Body.String())
	}
	stage := decode[StageResponse](t, rec)
	if stage.Stage != config.StageOne || stage.Name != "stage1" || stage.Declared {
		t.Fatalf("unexpected stage response: %+v", stage)
	}
	if stage.Flags.ProteinEncoder || stage.Flags.LP || !stage.Flags.Llama {
		t.Fatalf("unexpected flags: %+v", stage.Flags)
	}
	if stage.FreezeStrEncoder {
		t.Fatal("structure encoder should default to trainable")
	}
	if stage.EffectiveBatchSize != 16 {
		t.Fatalf("effective batch size: got %d want 16", stage.EffectiveBatchSize)
	}
}

func TestConfigDocument(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("config status: got %d body=%s", rec.Code, rec.Body.String())
	}
	doc := decode[map[string]map[string]any](t, rec)
	if doc["model"]["arch"] != "proteinchat" {
		t.Fatalf("unexpected model section: %v", doc["model"])
	}
	if doc["run"]["lr_sched"] != "linear_warmup_cosine_lr" {
		t.Fatalf("unexpected run section: %v", doc["run"])
	}
}

func TestPlanEndpoint(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/plan?run_id=abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("plan status: got %d body=%s", rec.Code, rec.Body.String())
	}
	p := decode[plan.Plan](t, rec)
	if p.RunID != "abc" || filepath.Base(p.RunDir) != "abc" {
		t.Fatalf("unexpected run identity: %q %q", p.RunID, p.RunDir)
	}
	if p.TotalSteps != 50000 || p.Adapter != nil {
		t.Fatalf("unexpected plan: %+v", p)
	}
}

func TestReload(t *testing.T) {
	t.Parallel()

	e, path := newTestEcho(t)

	writeConfig(t, path, strings.Replace(stageOneDoc, "freeze_llama: True", "freeze_llama: False", 1))
	rec := doJSON(t, e, http.MethodPost, "/v1/reload", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decode[map[string]ResponseError](t, rec)
	violations := body["error"].Violations
	if len(violations) == 0 || violations[0].Code != "stage_conflict_error" {
		t.Fatalf("unexpected violations: %+v", violations)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/stage", "")
	if got := decode[StageResponse](t, rec); got.Stage != config.StageOne {
		t.Fatalf("rejected reload replaced config: %+v", got)
	}

	stageTwo := strings.NewReplacer(
		"freeze_protein_encoder: False", "freeze_protein_encoder: True",
		"freeze_lp: False", "freeze_lp: True",
		"freeze_llama: True", "freeze_llama: False",
	).Replace(stageOneDoc)
	writeConfig(t, path, stageTwo)
	rec = doJSON(t, e, http.MethodPost, "/v1/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[ReloadResponse](t, rec); got.Status != "reloaded" || got.Stage != "stage2" {
		t.Fatalf("unexpected reload response: %+v", got)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/plan", "")
	p := decode[plan.Plan](t, rec)
	if p.Adapter == nil || p.Adapter.R != 8 {
		t.Fatalf("stage2 plan should carry the default adapter: %+v", p.Adapter)
	}
}

func TestNoHolder(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewServer(nil).Register(e)
	for _, path := range []string{"/healthz", "/v1/config", "/v1/stage", "/v1/plan"} {
		rec := doJSON(t, e, http.MethodGet, path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
		if got := decode[map[string]ResponseError](t, rec)["error"]; got.Type != "unavailable_error" || got.Message != "no configuration loaded" {
			t.Fatalf("%s: unexpected error body %+v", path, got)
		}
	}
	rec := doJSON(t, e, http.MethodPost, "/v1/reload", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("reload: expected 503, got %d", rec.Code)
	}
	if got := decode[map[string]ResponseError](t, rec)["error"]; got.Type != "unavailable_error" {
		t.Fatalf("reload: unexpected error body %+v", got)
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	server, path := newTestServer(t)
	e := echo.New()
	server.Register(e)

	if got := testutil.ToFloat64(server.metrics.stage); got != 1 {
		t.Fatalf("stage gauge: got %v want 1", got)
	}
	if got := testutil.ToFloat64(server.metrics.effectiveBatch); got != 16 {
		t.Fatalf("effective batch gauge: got %v want 16", got)
	}

	writeConfig(t, path, strings.Replace(stageOneDoc, "batch_size_train: 1", "batch_size_train: 0", 1))
	doJSON(t, e, http.MethodPost, "/v1/reload", "")
	writeConfig(t, path, strings.Replace(stageOneDoc, "world_size: 2", "world_size: 4", 1))
	doJSON(t, e, http.MethodPost, "/v1/reload", "")

	if got := testutil.ToFloat64(server.metrics.reloads.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejected reloads: got %v want 1", got)
	}
	if got := testutil.ToFloat64(server.metrics.reloads.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok reloads: got %v want 1", got)
	}
	if got := testutil.ToFloat64(server.metrics.effectiveBatch); got != 32 {
		t.Fatalf("effective batch gauge after reload: got %v want 32", got)
	}

	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "proteintune_config_reloads_total") {
		t.Fatalf("metrics output missing reload counter: %s", rec.Body.String())
	}
}
