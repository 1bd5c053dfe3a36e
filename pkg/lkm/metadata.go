// Copyright 2019 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lkm

import (
	"strconv"
	"strings"

	"github.com/gorquan/rcore/pkg/kerrors"
)

// Dependence is one declared module dependency and the API version the
// loading module was built against.
type Dependence struct {
	Name       string
	APIVersion int32
}

// Info is the parsed contents of a module's .rcore-lkm metadata section:
// key:value lines declaring the module's identity, the symbols it
// exports, and the modules it depends on.
type Info struct {
	Name             string
	Version          int32
	APIVersion       int32
	ExportedSymbols  []string
	DependentModules []Dependence
}

// ParseInfo parses the .rcore-lkm section body. Malformed lines or
// unparseable integers fail NotExec, matching the original's
// ModuleInfo::parse returning None on any column-count or parse
// mismatch.
func ParseInfo(input string) (Info, error) {
	info := Info{Name: "<anonymous module>"}
	for _, line := range strings.Split(input, "\n") {
		if len(line) == 0 {
			continue
		}
		cols := strings.Split(line, ":")
		if len(cols) != 2 {
			return Info{}, kerrors.NotExec
		}
		switch cols[0] {
		case "name":
			info.Name = cols[1]
		case "version":
			v, err := strconv.ParseInt(cols[1], 10, 32)
			if err != nil {
				return Info{}, kerrors.NotExec
			}
			info.Version = int32(v)
		case "api_version":
			v, err := strconv.ParseInt(cols[1], 10, 32)
			if err != nil {
				return Info{}, kerrors.NotExec
			}
			info.APIVersion = int32(v)
		case "exported_symbols":
			for _, s := range strings.Split(cols[1], ",") {
				if s != "" {
					info.ExportedSymbols = append(info.ExportedSymbols, s)
				}
			}
		case "dependence":
			for _, dep := range strings.Split(cols[1], ",") {
				if dep == "" {
					continue
				}
				pair := strings.SplitN(dep, "=", 2)
				if len(pair) != 2 {
					return Info{}, kerrors.NotExec
				}
				v, err := strconv.ParseInt(pair[1], 10, 32)
				if err != nil {
					return Info{}, kerrors.NotExec
				}
				info.DependentModules = append(info.DependentModules, Dependence{Name: pair[0], APIVersion: int32(v)})
			}
		default:
			return Info{}, kerrors.NotExec
		}
	}
	return info, nil
}
