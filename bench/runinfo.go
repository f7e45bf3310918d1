// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"fmt"
	"io/ioutil"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"gopkg.in/yaml.v3"
)

// RunInfo describes the sweep that produced a results table. It is
// written next to the table, once, when the table is created.
type RunInfo struct {
	ID         string    `yaml:"id"`
	Variable   Variable  `yaml:"variable"`
	Constant   int       `yaml:"constant,omitempty"`
	Max        int       `yaml:"max"`
	Step       int       `yaml:"step"`
	Loops      int       `yaml:"loops"`
	Dataset    string    `yaml:"dataset"`
	Strategy   string    `yaml:"strategy"`
	Host       string    `yaml:"host"`
	GOMAXPROCS int       `yaml:"gomaxprocs"`
	Created    time.Time `yaml:"created"`
}

// NewRunInfo returns the run info for a sweep of config using the
// named strategy.
func NewRunInfo(config Config, strategy string) RunInfo {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	info := RunInfo{
		ID:         uuid.New().String(),
		Variable:   config.Variable,
		Max:        config.Max,
		Step:       config.Step,
		Loops:      config.Loops,
		Dataset:    config.Path,
		Strategy:   strategy,
		Host:       host,
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Created:    time.Now().UTC().Truncate(time.Second),
	}
	if c, ok := config.Constant(); ok {
		info.Constant = c
	}
	return info
}

// RunInfoPath returns the path of the run info for the table at
// tablePath.
func RunInfoPath(tablePath string) string {
	return strings.TrimSuffix(tablePath, ".csv") + ".yaml"
}

// WriteRunInfo writes info to path.
func WriteRunInfo(path string, info RunInfo) error {
	p, err := yaml.Marshal(&info)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, p, 0644); err != nil {
		return errors.E(err, fmt.Sprintf("bench: write run info %s", path))
	}
	return nil
}

// ReadRunInfo reads the run info stored at path.
func ReadRunInfo(path string) (RunInfo, error) {
	var info RunInfo
	p, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return info, errors.E(errors.NotExist, fmt.Sprintf("bench: run info %s", path), err)
		}
		return info, err
	}
	if err := yaml.Unmarshal(p, &info); err != nil {
		return info, errors.E(errors.Integrity, fmt.Sprintf("bench: run info %s", path), err)
	}
	return info, nil
}
