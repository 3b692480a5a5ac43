package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	proteinPlaceholder   = "<proteinHere>"
	structurePlaceholder = "<structureHere>"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateFields runs the struct-tag checks and translates each failure into
// the contract's error taxonomy.
func validateFields(cfg *Config) error {
	err := structValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, translateFieldError(fe))
	}
	return errors.Join(out...)
}

func translateFieldError(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return schemaErr(field, "must not be empty")
	case "oneof":
		return typeErr(field, "%v is not one of [%s]", fe.Value(), fe.Param())
	case "gt":
		return rangeErr(field, "%v must be greater than %s", fe.Value(), fe.Param())
	case "gte":
		return rangeErr(field, "%v must be at least %s", fe.Value(), fe.Param())
	case "lt":
		return rangeErr(field, "%v must be less than %s", fe.Value(), fe.Param())
	case "lte":
		return rangeErr(field, "%v must be at most %s", fe.Value(), fe.Param())
	default:
		return typeErr(field, "failed %q check", fe.Tag())
	}
}

// validateSemantics checks rules that span more than one field.
func validateSemantics(cfg *Config) error {
	var errs []error
	m, r := cfg.Model, cfg.Run

	if m.Stage == nil {
		flags := []struct {
			name string
			v    *bool
		}{
			{"freeze_protein_encoder", m.FreezeProteinEncoder},
			{"freeze_lp", m.FreezeLP},
			{"freeze_llama", m.FreezeLlama},
		}
		for _, f := range flags {
			if f.v == nil {
				errs = append(errs, schemaErr("model."+f.name, "required key is missing (or declare model.stage)"))
			}
		}
	}
	if m.Prompt != "" {
		if strings.Count(m.Prompt, proteinPlaceholder) != 1 {
			errs = append(errs, typeErr("model.prompt", "template must contain %s exactly once", proteinPlaceholder))
		} else if n := strings.Count(m.Prompt, structurePlaceholder); n > 1 ||
			(n == 1 && strings.Index(m.Prompt, structurePlaceholder) < strings.Index(m.Prompt, proteinPlaceholder)) {
			errs = append(errs, typeErr("model.prompt", "%s may appear once, after %s", structurePlaceholder, proteinPlaceholder))
		}
	}

	if len(cfg.Datasets) == 0 {
		errs = append(errs, schemaErr("datasets", "at least one dataset is required"))
	}
	for _, name := range cfg.DatasetNames() {
		if len(cfg.Datasets[name].BuildInfo) == 0 {
			errs = append(errs, schemaErr("datasets."+name+".build_info", "at least one split is required"))
		}
	}

	if r.MinLR > r.InitLR {
		errs = append(errs, rangeErr("run.min_lr", "%g exceeds init_lr %g", r.MinLR, r.InitLR))
	}
	if r.LRDecayRate != nil && r.LRSched != "linear_warmup_step_lr" {
		errs = append(errs, schemaErr("run.lr_decay_rate", "only applies to linear_warmup_step_lr"))
	}
	if (r.MaxIters == nil) != (r.ItersPerInnerEpoch == nil) {
		errs = append(errs, schemaErr("run.max_iters", "max_iters and iters_per_inner_epoch must be set together"))
	}

	if len(r.TrainSplits) == 0 {
		errs = append(errs, schemaErr("run.train_splits", "at least one split is required"))
	}
	errs = append(errs, checkSplits(cfg, "run.train_splits", r.TrainSplits)...)
	errs = append(errs, checkSplits(cfg, "run.valid_splits", r.ValidSplits)...)
	errs = append(errs, checkSplits(cfg, "run.test_splits", r.TestSplits)...)
	if r.Evaluate && len(r.ValidSplits) == 0 && len(r.TestSplits) == 0 {
		errs = append(errs, schemaErr("run.evaluate", "evaluation requires valid_splits or test_splits"))
	}

	if r.Distributed {
		if err := checkDistURL(r.DistURL); err != nil {
			errs = append(errs, err)
		}
	} else if r.WorldSize != 1 {
		errs = append(errs, rangeErr("run.world_size", "%d requires distributed: true", r.WorldSize))
	}
	if r.UseDistEvalSampler && !r.Distributed {
		errs = append(errs, schemaErr("run.use_dist_eval_sampler", "requires distributed: true"))
	}
	return errors.Join(errs...)
}

func checkSplits(cfg *Config, field string, splits []string) []error {
	var errs []error
	seen := make(map[string]bool, len(splits))
	for _, split := range splits {
		if seen[split] {
			errs = append(errs, schemaErr(field, "split %q listed twice", split))
			continue
		}
		seen[split] = true
		for _, name := range cfg.DatasetNames() {
			if _, ok := cfg.Datasets[name].BuildInfo[split]; !ok {
				errs = append(errs, schemaErr(field, "split %q is not declared by dataset %q", split, name))
			}
		}
	}
	return errs
}

// checkDistURL accepts the rendezvous forms torch.distributed understands.
func checkDistURL(raw string) error {
	const field = "run.dist_url"
	if raw == "" {
		return schemaErr(field, "required when distributed is true")
	}
	if raw == "env://" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return typeErr(field, "%q is not a URL", raw)
	}
	switch u.Scheme {
	case "tcp":
		if _, port, err := net.SplitHostPort(u.Host); err != nil || port == "" || u.Hostname() == "" {
			return typeErr(field, "%q must be tcp://host:port", raw)
		}
		return nil
	case "file":
		if u.Path == "" {
			return typeErr(field, "%q must name a file", raw)
		}
		return nil
	default:
		return typeErr(field, "scheme %q is not one of env, tcp, file", u.Scheme)
	}
}
