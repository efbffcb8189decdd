/*
Copyright 2026 The Forge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neopilotai/FORGE/pkg/apply"
	"github.com/neopilotai/FORGE/pkg/audit"
	"github.com/neopilotai/FORGE/pkg/gate"
	"github.com/neopilotai/FORGE/pkg/orchestrator"
	"github.com/neopilotai/FORGE/pkg/retry"
	"github.com/neopilotai/FORGE/pkg/types"
)

func TestScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "End-to-End Scenario Suite")
}

// newScenarioDriver mirrors newTestDriver but lets a scenario choose its own
// retry budget, which the schema-violation-retry-count scenario needs.
func newScenarioDriver(responses []string, maxAttempts uint) *Driver {
	root := GinkgoT().TempDir()
	backend := &scriptedBackend{responses: responses}
	orch := orchestrator.New(backend, retry.Options{MaxAttempts: maxAttempts, InitialInterval: 0, MaxInterval: 0, PerAttemptTimeout: 1e9})
	applicator := apply.New(apply.NewInProcessLocker(), GinkgoT().TempDir())
	store, err := audit.NewFileStore(filepath.Join(GinkgoT().TempDir(), "journal.ndjson"), 0)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { store.Close() })
	return New(orch, applicator, store)
}

var _ = Describe("end-to-end failure scenarios", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644)).To(Succeed())
	})

	It("classifies an npm registry E403 as an auth failure", func() {
		const npmLog = `##[group]Run npm publish
npm ERR! code E403
npm ERR! 403 Forbidden - PUT https://registry.npmjs.org/pkg - you do not have permission to publish
##[endgroup]
`
		d := newScenarioDriver([]string{
			logAnalystJSON, workflowExpertJSON, codeReviewerJSON,
			fixGeneratorJSON(".npmrc", "//registry.npmjs.org/:_authToken=${NPM_TOKEN}\\n"),
		}, 1)

		result, err := d.Run(context.Background(), Request{RawLog: npmLog, Root: root})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Analysis.Primary.Type).To(Equal(types.FailureAuth))
	})

	It("classifies a container registry permission denial as an auth failure requiring manual review", func() {
		const registryLog = `##[group]Run docker push
denied: denied
unauthorized: authentication required
##[endgroup]
`
		Expect(os.WriteFile(filepath.Join(root, "permissions.yml"), []byte("contents: read\n"), 0o644)).To(Succeed())
		d := newScenarioDriver([]string{
			logAnalystJSON, workflowExpertJSON, codeReviewerJSON,
			fixGeneratorJSON("permissions.yml", "contents: read\\npackages: write\\n"),
		}, 1)
		d.GateConfig = gate.DefaultConfig()
		d.GateConfig.RequiresSecurityReview = true

		result, err := d.Run(context.Background(), Request{RawLog: registryLog, Root: root})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Analysis.Primary.Type).To(Equal(types.FailureAuth))
		Expect(result.Decision.Action).To(Equal(types.GateManualReview))
	})

	It("classifies a missing deploy secret as an env failure requiring manual review", func() {
		const deployLog = `##[group]Run deploy
secret 'stage.prod.API_KEY' is not defined
secret 'stage.prod.DB_PASSWORD' is not defined
secret 'stage.prod.SIGNING_KEY' is not defined
##[endgroup]
`
		Expect(os.WriteFile(filepath.Join(root, "deploy-secrets.yml"), []byte("steps: []\n"), 0o644)).To(Succeed())
		d := newScenarioDriver([]string{
			logAnalystJSON, workflowExpertJSON, codeReviewerJSON,
			fixGeneratorJSON("deploy-secrets.yml", "env:\\n  API_KEY: ${{ secrets.API_KEY }}\\n"),
		}, 1)
		d.GateConfig = gate.DefaultConfig()
		d.GateConfig.RequiresSecurityReview = true

		result, err := d.Run(context.Background(), Request{RawLog: deployLog, Root: root})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Analysis.Primary.Type).To(Equal(types.FailureEnv))
		Expect(result.Decision.Action).To(Equal(types.GateManualReview))
	})

	DescribeTable("classifies end-of-life runtime API usage as a build failure",
		func(line string) {
			d := newScenarioDriver([]string{
				logAnalystJSON, workflowExpertJSON, codeReviewerJSON,
				fixGeneratorJSON("main.go", "package main\\nfunc Foo() {}\\n"),
			}, 1)
			log := "##[group]Run node test\n" + line + "\n##[endgroup]\n"
			result, err := d.Run(context.Background(), Request{RawLog: log, Root: root})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Analysis.Primary.Type).To(Equal(types.FailureBuild))
		},
		Entry("Node 14 crypto.subtle", "crypto.subtle is not available in Node 14"),
		Entry("Node 16 fetch global", "globalThis.fetch is not available in Node 16"),
		Entry("unsupported Node version string", "unsupported node version for this build"),
	)

	It("recovers from two log-analyst schema violations and reports the retries used", func() {
		invalidLogAnalyst := `{"failureType":"build"}`
		d := newScenarioDriver([]string{
			invalidLogAnalyst, invalidLogAnalyst, logAnalystJSON,
			workflowExpertJSON, codeReviewerJSON,
			fixGeneratorJSON("main.go", "package main\\nfunc Foo() {}\\n"),
		}, 3)

		result, err := d.Run(context.Background(), Request{RawLog: buildLog, Root: root})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Summary.RetriesUsed).To(Equal(2))
	})
})
