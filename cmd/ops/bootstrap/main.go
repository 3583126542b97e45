// Package main implements the bootstrap CLI for the billing webhook service.
//
// It copies the service's secrets from the operator's environment (or a
// dotenv file) into AWS SSM Parameter Store as SecureString parameters and
// prints the NAME_SSM_PARAM pointers the deployed service resolves at
// startup.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev --from=.env.dev
//	go run ./cmd/ops/bootstrap --env=prod --profile=petcare-prod --overwrite
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/joho/godotenv"
)

// Supported environments for the bootstrap tool.
var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: uses default credential chain)")
	regionFlag := flag.String("region", "eu-central-1", "AWS region")
	fromFlag := flag.String("from", "", "Dotenv file to read values from (default: process environment)")
	overwriteFlag := flag.Bool("overwrite", false, "Replace parameters that already exist")
	dryRunFlag := flag.Bool("dry-run", false, "Validate input and print pointers without writing")
	flag.Parse()

	if !validEnvironments[*envFlag] {
		fmt.Fprintf(os.Stderr, "error: --env must be dev, staging, or prod (got %q)\n\n", *envFlag)
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lookup, err := valueSource(*fromFlag)
	if err != nil {
		logger.Error("reading input values", "error", err)
		os.Exit(1)
	}

	cfg, err := loadAWSConfig(ctx, *profileFlag, *regionFlag)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	account, err := verifyIdentity(ctx, sts.NewFromConfig(cfg), logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if *envFlag == "prod" && !*dryRunFlag && !confirm(os.Stdin, os.Stderr, account, *regionFlag) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}

	runner := &Runner{
		SSM:       NewSSMManager(ssm.NewFromConfig(cfg), *envFlag, logger),
		Lookup:    lookup,
		Overwrite: *overwriteFlag,
		DryRun:    *dryRunFlag,
		Out:       os.Stdout,
	}
	params := Inventory()
	results, err := runner.Run(ctx, params)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	for _, p := range params {
		logger.Info("parameter", "name", p.EnvVar, "outcome", string(results[p.EnvVar]))
	}
	runner.WritePointers(params, results)
}

// valueSource reads from a dotenv file when path is set, else from the
// process environment.
func valueSource(path string) (func(string) (string, bool), error) {
	if path == "" {
		return os.LookupEnv, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}, nil
}

func loadAWSConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// identityClient is the STS subset used to confirm credentials.
type identityClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// verifyIdentity fails fast on bad credentials and returns the account ID.
func verifyIdentity(ctx context.Context, client identityClient, logger *slog.Logger) (string, error) {
	idCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	identity, err := client.GetCallerIdentity(idCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w", err)
	}
	account := aws.ToString(identity.Account)
	logger.Info("AWS identity verified",
		"account_id", account,
		"arn", aws.ToString(identity.Arn),
	)
	return account, nil
}

// confirm asks the operator to type "yes" before production writes.
func confirm(in io.Reader, out io.Writer, account, region string) bool {
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintf(out, "  Account: %s\n", account)
	fmt.Fprintf(out, "  Region:  %s\n", region)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprint(out, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
