package classify

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neopilotai/FORGE/pkg/types"
)

func TestClassify(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Rule Engine Suite")
}

var _ = Describe("Classify", func() {
	It("returns no events when nothing in the log matches a rule", func() {
		events := Classify("building project\nall tests passed\n", nil)
		Expect(events).To(BeEmpty())
	})

	It("lets the first matching rule in catalogue order win", func() {
		events := Classify("ERROR: 401 unauthorized: authentication failed", nil)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal(types.FailureAuth))
	})

	It("resolves the enclosing step from a preceding delimiter line", func() {
		log := strings.Join([]string{
			"##[group]Run npm test",
			"npm test",
			"running suite",
			"1 failed, 2 passed",
		}, "\n")
		events := Classify(log, nil)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Step).To(Equal("npm test"))
	})

	It("reports step unknown when no delimiter precedes the match", func() {
		events := Classify("1 failed, 2 passed", nil)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Step).To(Equal("unknown"))
	})

	It("attaches a stack trace window when the surrounding lines look like one", func() {
		log := strings.Join([]string{
			"##[group]Run go test",
			"panic: runtime error",
			"Error: nil pointer dereference",
			"\tat main.main()",
			"\tat runtime.main()",
		}, "\n")
		events := Classify(log, nil)
		Expect(events).NotTo(BeEmpty())
		found := false
		for _, ev := range events {
			if ev.StackTrace != "" {
				found = true
				Expect(ev.StackTrace).To(ContainSubstring("at main.main()"))
			}
		}
		Expect(found).To(BeTrue())
	})

	It("one-indexes the matched line number", func() {
		events := Classify("ok\n401 unauthorized\n", nil)
		Expect(events).To(HaveLen(1))
		Expect(events[0].LineNumber).To(Equal(2))
	})

	It("carries the matched rule's confidenceModifier onto the event", func() {
		events := Classify("401 unauthorized\n", nil)
		Expect(events).To(HaveLen(1))
		Expect(events[0].RuleConfidenceModifier).To(Equal(0.8))
	})

	DescribeTable("recognises the literal failure shapes from end-to-end scenarios",
		func(line string, wantType types.FailureType) {
			events := Classify(line, nil)
			Expect(events).NotTo(BeEmpty(), "expected at least one matching rule for: %s", line)
			Expect(events[0].Type).To(Equal(wantType))
		},
		Entry("npm registry E403", "npm ERR! code E403\n403 Forbidden - PUT https://registry.npmjs.org/pkg", types.FailureAuth),
		Entry("container registry denial", "denied: denied\nunauthorized: authentication required", types.FailureAuth),
		Entry("missing deploy secret", `secret 'stage.prod.API_KEY' is not defined`, types.FailureEnv),
		Entry("end-of-life runtime API", "crypto.subtle is not available in Node 14", types.FailureBuild),
	)
})
