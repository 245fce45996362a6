package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/synaptica-ai/heartrisk/pkg/common/logger"
	"github.com/synaptica-ai/heartrisk/pkg/common/models"
	"github.com/synaptica-ai/heartrisk/pkg/ingestion"
	"github.com/synaptica-ai/heartrisk/pkg/serving"
	"github.com/synaptica-ai/heartrisk/pkg/serving/explain"
	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/inference"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
	"github.com/synaptica-ai/heartrisk/pkg/serving/pipeline"
	"github.com/synaptica-ai/heartrisk/pkg/serving/report"
)

type options struct {
	modelPath string
	method    string
	inputPath string
	asJSON    bool
	width     int
	logLevel  string
	inputs    features.ClinicalInputs
}

func parseFlags(args []string) (options, error) {
	defaults := features.DefaultInputs()
	opts := options{}

	fs := flag.NewFlagSet("risk-cli", flag.ContinueOnError)
	fs.StringVar(&opts.modelPath, "model", getEnv("MODEL_ARTIFACT_PATH", "models/heart_model.json"), "path to the model artifact")
	fs.StringVar(&opts.method, "method", getEnv("ATTRIBUTION_METHOD", explain.MethodAuto), "attribution method: auto, tree or linear")
	fs.StringVar(&opts.inputPath, "input", "", "JSON file with clinical inputs; - reads stdin")
	fs.BoolVar(&opts.asJSON, "json", false, "print the assessment as JSON")
	fs.IntVar(&opts.width, "width", report.DefaultWidth, "bar chart width")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	fs.IntVar(&opts.inputs.Age, "age", defaults.Age, "age in years [20,90]")
	fs.Float64Var(&opts.inputs.SerumCreatinine, "serum-creatinine", defaults.SerumCreatinine, "serum creatinine mg/dL [0.1,10]")
	fs.IntVar(&opts.inputs.SerumSodium, "serum-sodium", defaults.SerumSodium, "serum sodium mEq/L [100,150]")
	fs.IntVar(&opts.inputs.EjectionFraction, "ejection-fraction", defaults.EjectionFraction, "ejection fraction % [10,80]")
	fs.IntVar(&opts.inputs.HighBloodPressure, "high-blood-pressure", defaults.HighBloodPressure, "high blood pressure flag 0/1")
	fs.IntVar(&opts.inputs.Diabetes, "diabetes", defaults.Diabetes, "diabetes flag 0/1")
	fs.IntVar(&opts.inputs.Anaemia, "anaemia", defaults.Anaemia, "anaemia flag 0/1")

	err := fs.Parse(args)
	return opts, err
}

func readRecord(path string, stdin io.Reader) (features.RawRecord, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var req ingestion.RequestWrapper
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &req); err == nil && req.Features != nil {
		return req.Record(), nil
	}
	var raw features.RawRecord
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return raw, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	logger.Init(opts.logLevel)
	logger.SetOutput(os.Stderr)

	classifier, err := model.Load(opts.modelPath)
	if err != nil {
		return err
	}
	attribution := explain.New(classifier, opts.method)
	p := pipeline.New(classifier, inference.New(classifier), attribution)

	raw := opts.inputs.Record()
	if opts.inputPath != "" {
		if raw, err = readRecord(opts.inputPath, stdin); err != nil {
			return err
		}
	}

	assessor := serving.NewAssessor(ingestion.NewValidator(nil), p)
	start := time.Now()
	result, resp, err := assessor.Assess(context.Background(), models.AssessmentRequest{Features: raw})
	if err != nil {
		return err
	}
	resp.Latency = time.Since(start)

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return report.Render(stdout, result, opts.width)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
