// Copyright 2018 The gVisor Authors.
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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gorquan/rcore/pkg/boot"
	"github.com/gorquan/rcore/pkg/bootconfig"
)

// bootKernel loads the manifest at configPath and runs the full boot
// sequence against it, inserting every module the manifest lists in
// order. Each kernelctl invocation boots its own ephemeral kernel
// rather than attaching to a long-lived daemon; that matches this
// module's scope (a boot-to-inspection tool), not a running system.
func bootKernel(ctx context.Context, configPath string) (*boot.Kernel, *bootconfig.Config, error) {
	cfg, err := bootconfig.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	k, err := boot.New(ctx, boot.Info{LoadBase: cfg.LoadBase}, cfg)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range cfg.Modules {
		image, err := os.ReadFile(m.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading module %s: %w", m.Path, err)
		}
		if _, err := k.InsertModule(image); err != nil {
			return nil, nil, fmt.Errorf("inserting module %s: %w", m.Path, err)
		}
	}
	return k, cfg, nil
}
