package errors

import (
	stderrors "errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Errors Suite")
}

var _ = Describe("AppError", func() {
	Context("basic error creation", func() {
		It("should create an error with the correct properties", func() {
			err := New(ErrorTypeInputInvalid, "bad log")

			Expect(err.Type).To(Equal(ErrorTypeInputInvalid))
			Expect(err.Message).To(Equal("bad log"))
			Expect(err.Details).To(BeEmpty())
			Expect(err.Cause).To(BeNil())
		})

		It("should implement the error interface", func() {
			err := New(ErrorTypeInputInvalid, "bad log")
			Expect(err.Error()).To(Equal("input_invalid: bad log"))
		})

		It("should include details in the error string when present", func() {
			err := New(ErrorTypeInputInvalid, "bad log").WithDetails("empty body")
			Expect(err.Error()).To(Equal("input_invalid: bad log (empty body)"))
		})
	})

	Context("error wrapping", func() {
		It("should wrap an underlying error", func() {
			original := stderrors.New("transport reset")
			wrapped := Wrap(original, ErrorTypeBackendUnavailable, "llm call failed")

			Expect(wrapped.Type).To(Equal(ErrorTypeBackendUnavailable))
			Expect(wrapped.Cause).To(Equal(original))
			Expect(wrapped.Unwrap()).To(Equal(original))
		})

		It("should format wrapped errors with arguments", func() {
			original := stderrors.New("timeout")
			wrapped := Wrapf(original, ErrorTypeTimedOut, "call to %s exceeded %ds", "anthropic", 30)
			Expect(wrapped.Message).To(Equal("call to anthropic exceeded 30s"))
		})
	})

	Context("type checking", func() {
		It("should identify AppError types", func() {
			err := New(ErrorTypeApplyConflict, "overlapping target")
			Expect(IsType(err, ErrorTypeApplyConflict)).To(BeTrue())
			Expect(IsType(err, ErrorTypeTimedOut)).To(BeFalse())
		})

		It("should fall back to internal for non-AppError values", func() {
			regular := stderrors.New("plain")
			Expect(IsType(regular, ErrorTypeInputInvalid)).To(BeFalse())
			Expect(GetType(regular)).To(Equal(ErrorTypeInternal))
		})
	})

	Context("recommendations", func() {
		It("should return a non-empty recommendation for every declared kind", func() {
			kinds := []ErrorType{
				ErrorTypeInputInvalid, ErrorTypeNoFailureDetected, ErrorTypeBudgetExceeded,
				ErrorTypeSchemaViolation, ErrorTypeBackendUnavailable, ErrorTypeValidationFailed,
				ErrorTypeApplyConflict, ErrorTypeApplyFailed, ErrorTypeConcurrentApply,
				ErrorTypeCancelled, ErrorTypeTimedOut, ErrorTypeInternal,
			}
			for _, k := range kinds {
				err := New(k, "x")
				Expect(Recommendation(err)).NotTo(BeEmpty())
			}
		})
	})

	Context("safe messages", func() {
		It("should pass through validation messages", func() {
			err := New(ErrorTypeInputInvalid, "name is required")
			Expect(SafeErrorMessage(err)).To(Equal("name is required"))
		})

		It("should return a generic message for internal errors", func() {
			err := New(ErrorTypeApplyFailed, "disk full")
			Expect(SafeErrorMessage(err)).NotTo(ContainSubstring("disk full"))
		})

		It("should return a generic message for non-AppError values", func() {
			Expect(SafeErrorMessage(stderrors.New("panic"))).To(Equal("an unexpected error occurred"))
		})
	})

	Context("logging fields", func() {
		It("should generate structured fields for a wrapped error", func() {
			original := stderrors.New("connection refused")
			err := Wrapf(original, ErrorTypeBackendUnavailable, "call failed").WithDetails("attempt 3")

			fields := LogFields(err)
			Expect(fields).To(HaveKeyWithValue("error_type", "backend_unavailable"))
			Expect(fields).To(HaveKeyWithValue("error_details", "attempt 3"))
			Expect(fields).To(HaveKeyWithValue("underlying_error", "connection refused"))
		})

		It("should omit optional keys when absent", func() {
			err := New(ErrorTypeInputInvalid, "bad input")
			fields := LogFields(err)
			Expect(fields).NotTo(HaveKey("error_details"))
			Expect(fields).NotTo(HaveKey("underlying_error"))
		})
	})

	Context("status codes", func() {
		It("should map conflict kinds to 409", func() {
			Expect(GetStatusCode(New(ErrorTypeApplyConflict, "x"))).To(Equal(409))
			Expect(GetStatusCode(New(ErrorTypeConcurrentApply, "x"))).To(Equal(409))
		})
	})

	Context("error chaining", func() {
		It("should return nil for no errors", func() {
			Expect(Chain()).To(BeNil())
			Expect(Chain(nil, nil)).To(BeNil())
		})

		It("should return the single error unchanged", func() {
			e := stderrors.New("only one")
			Expect(Chain(e)).To(Equal(e))
		})

		It("should chain multiple errors with an arrow separator", func() {
			e1 := stderrors.New("first")
			e2 := stderrors.New("second")
			chained := Chain(e1, nil, e2)

			Expect(chained.Error()).To(ContainSubstring("first"))
			Expect(chained.Error()).To(ContainSubstring("second"))
			Expect(chained.Error()).To(ContainSubstring(" -> "))
		})
	})
})
