package rollback_test

import (
	"bytes"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"golang.org/x/exp/slog"

	"vkframe/rollback"
)

var _ = Describe("Stack", func() {
	var (
		stack *rollback.Stack
		order []string
	)

	BeforeEach(func() {
		stack = rollback.New("test", nil)
		order = nil
	})

	push := func(name string) {
		stack.Push(name, func() { order = append(order, name) })
	}

	It("runs the undo actions in reverse order", func() {
		push("instance")
		push("surface")
		push("device")

		Expect(stack.Unwind()).To(Succeed())
		Expect(order).To(Equal([]string{"device", "surface", "instance"}))
		Expect(stack.Fired()).To(BeTrue())
		Expect(stack.Len()).To(BeZero())
	})

	It("does nothing once defused", func() {
		push("instance")
		push("surface")
		stack.Defuse()

		Expect(stack.Unwind()).To(Succeed())
		Expect(order).To(BeEmpty())
		Expect(stack.Fired()).To(BeFalse())
	})

	It("can be unwound twice", func() {
		push("instance")

		Expect(stack.Unwind()).To(Succeed())
		Expect(stack.Unwind()).To(Succeed())
		Expect(order).To(Equal([]string{"instance"}))
	})

	It("keeps unwinding past failing actions and reports them", func() {
		push("first")
		stack.PushErr("second", func() error {
			return errors.New("boom")
		})
		stack.Push("third", func() { panic("oops") })

		err := stack.Unwind()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("undo third"))
		Expect(order).To(Equal([]string{"first"}))
	})

	It("logs each fired step", func() {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		stack = rollback.New("device context", logger)
		stack.Push("surface", func() {})
		Expect(stack.Unwind()).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("surface rollback"))
		Expect(buf.String()).To(ContainSubstring("device context"))
	})
})
