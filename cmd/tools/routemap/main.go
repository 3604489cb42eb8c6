package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ylmrx/monyt/internal/cloud/awsec2"
	"github.com/ylmrx/monyt/internal/cloud/imds"
	"github.com/ylmrx/monyt/internal/cloud/memcloud"
	"github.com/ylmrx/monyt/internal/config"
	"github.com/ylmrx/monyt/internal/topology"
	"github.com/ylmrx/monyt/pkg/nat"
)

type report struct {
	Local         string   `yaml:"local"`
	Remote        string   `yaml:"remote"`
	PointAtLocal  []string `yaml:"point_at_local"`
	PointAtRemote []string `yaml:"point_at_remote"`
	ExpectedLocal []string `yaml:"expected_local"`
	ToClaim       []string `yaml:"to_claim,omitempty"`
}

func newReport(local, remote nat.PeerEndpoint, set nat.RouteSet) report {
	r := report{
		Local:         local.String(),
		Remote:        remote.String(),
		PointAtLocal:  nat.IDs(set.Local),
		PointAtRemote: nat.IDs(set.Remote),
		ExpectedLocal: nat.IDs(set.ExpectedLocal),
	}
	for _, tbl := range set.ExpectedLocal {
		if !tbl.PointsAt(local.ID) {
			r.ToClaim = append(r.ToClaim, string(tbl.ID))
		}
	}
	return r
}

func main() {
	configPath := flag.String("config", "", "monyt config file")
	instance := flag.String("instance", "", "local instance id, read from instance metadata when empty")
	demo := flag.Bool("demo", false, "classify an in-memory demo VPC")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	ctx := context.Background()

	var (
		cloud   topology.Cloud
		localID = nat.InstanceID(*instance)
		tag     = "role"
		pattern = "aws-nat"
	)
	if *demo {
		cloud = memcloud.Demo()
		if localID == "" {
			localID = "i-0aaa"
		}
	} else {
		if *configPath == "" {
			fmt.Fprintln(os.Stderr, "usage: routemap -config <config-file> [-instance <id>] | -demo")
			os.Exit(1)
		}
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		tag, pattern = cfg.Tag, cfg.Pattern
		region := cfg.Region
		if localID == "" || region == "" {
			ident, err := imds.New().Identity(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to read instance metadata")
			}
			if localID == "" {
				localID = ident.InstanceID
			}
			if region == "" {
				region = ident.Region
			}
		}
		awsCfg, err := awsec2.LoadConfig(ctx, region, cfg.Profile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init cloud client")
		}
		cloud = awsec2.New(awsCfg)
	}

	resolver := topology.NewResolver(cloud, tag, pattern, log.Logger)
	local, remote, err := resolver.ResolvePeers(ctx, localID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve NAT peers")
	}
	set, err := resolver.Classify(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to classify route tables")
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	err = enc.Encode(newReport(local, remote, set))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to print report")
	}
	_ = enc.Close()
}
