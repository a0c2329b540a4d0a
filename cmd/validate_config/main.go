// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/arrowarc/tripload/internal/json"
	"github.com/arrowarc/tripload/pkg/config"
	"github.com/docopt/docopt-go"
)

func main() {
	usage := `Tripload Configuration Validator.

Loads the configuration the commands would run with (defaults, YAML file,
.env file and environment) and validates the named sections.

Usage:
  validate_config [--config=<file>] [--env-file=<file>] [--sections=<list>] [--print]
  validate_config -h | --help

Options:
  -h --help            Show this screen.
  --config=<file>      YAML configuration file.
  --env-file=<file>    Environment file [default: .env].
  --sections=<list>    Comma separated sections to validate: download, postgres, gcs, bigquery, duckdb, window [default: download].
  --print              Print the effective configuration as JSON, secrets redacted.
`
	arguments, err := docopt.ParseDoc(usage)
	if err != nil {
		log.Fatalf("Error parsing arguments: %v", err)
	}

	configPath, _ := arguments.String("--config")
	envFile, _ := arguments.String("--env-file")
	sectionList, _ := arguments.String("--sections")
	printCfg, _ := arguments.Bool("--print")

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var sections []config.Section
	for _, s := range strings.Split(sectionList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, config.Section(strings.ToLower(s)))
		}
	}
	if err := cfg.Validate(sections...); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	if printCfg {
		redacted := *cfg
		if redacted.Postgres.Password != "" {
			redacted.Postgres.Password = "******"
		}
		out, err := json.PrettyPrint(redacted)
		if err != nil {
			log.Fatalf("Failed to print config: %v", err)
		}
		fmt.Print(out)
	}
	fmt.Printf("Configuration is valid (sections: %s).\n", sectionList)
}
