package lsmtable_test

import (
	"github.com/bsm/lsmtable"
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("InternalKey", func() {
	It("should encode", func() {
		Expect(ikey("foo", 1, lsmtable.KindUpdate)).To(Equal([]byte("foo\x01\x01\x00\x00\x00\x00\x00\x00")))
		Expect(ikey("", 0x0102, lsmtable.KindDelete)).To(Equal([]byte("\x00\x02\x01\x00\x00\x00\x00\x00")))
		Expect(lsmtable.MakeInternalKey([]byte("foo"), 1, lsmtable.KindUpdate).Encode(nil)).To(Equal(ikey("foo", 1, lsmtable.KindUpdate)))
	})

	It("should decode", func() {
		ik, err := lsmtable.DecodeInternalKey(ikey("foo", 77, lsmtable.KindDelete))
		Expect(err).NotTo(HaveOccurred())
		Expect(ik).To(Equal(lsmtable.InternalKey{UserKey: []byte("foo"), Sequence: 77, Kind: lsmtable.KindDelete}))
		Expect(ik.String()).To(Equal(`"foo"#77,DEL`))

		ik, err = lsmtable.DecodeInternalKey(lsmtable.LookupKey([]byte("bar")))
		Expect(err).NotTo(HaveOccurred())
		Expect(ik.Sequence).To(Equal(lsmtable.MaxSequence))
		Expect(ik.Kind).To(Equal(lsmtable.KindUpdate))
	})

	It("should reject malformed keys", func() {
		_, err := lsmtable.DecodeInternalKey([]byte("short"))
		Expect(errors.Is(err, lsmtable.ErrInvalidArgument)).To(BeTrue())

		_, err = lsmtable.DecodeInternalKey([]byte("foo\x07\x00\x00\x00\x00\x00\x00\x00"))
		Expect(errors.Is(err, lsmtable.ErrInvalidArgument)).To(BeTrue())
	})

	It("should truncate out-of-range sequences", func() {
		ik, err := lsmtable.DecodeInternalKey(ikey("k", lsmtable.MaxSequence+2, lsmtable.KindUpdate))
		Expect(err).NotTo(HaveOccurred())
		Expect(ik.Sequence).To(Equal(uint64(1)))
	})

	It("should reject out-of-range sequences when checked", func() {
		_, err := lsmtable.AppendInternalKey(nil, []byte("k"), lsmtable.MaxSequence+2, lsmtable.KindUpdate)
		Expect(errors.Is(err, lsmtable.ErrInvalidArgument)).To(BeTrue())

		_, err = lsmtable.AppendInternalKey(nil, []byte("k"), 1, lsmtable.Kind(7))
		Expect(errors.Is(err, lsmtable.ErrInvalidArgument)).To(BeTrue())

		key, err := lsmtable.AppendInternalKey([]byte("x"), []byte("k"), lsmtable.MaxSequence, lsmtable.KindDelete)
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal(append([]byte("x"), lsmtable.EncodeInternalKey(nil, []byte("k"), lsmtable.MaxSequence, lsmtable.KindDelete)...)))
	})
})

var _ = Describe("Ordering", func() {
	It("should order bytewise", func() {
		Expect(lsmtable.BytewiseOrder([]byte("a"), []byte("b"))).To(Equal(lsmtable.Before))
		Expect(lsmtable.BytewiseOrder([]byte("b"), []byte("a"))).To(Equal(lsmtable.After))
		Expect(lsmtable.BytewiseOrder([]byte("a"), []byte("a"))).To(Equal(lsmtable.Equal))
		Expect(lsmtable.BytewiseOrder([]byte("a"), []byte("ab"))).To(Equal(lsmtable.Before))
		Expect(lsmtable.Before.String()).To(Equal("before"))
	})

	It("should order internal keys", func() {
		Expect(lsmtable.InternalKeyOrder(ikey("a", 1, lsmtable.KindUpdate), ikey("b", 9, lsmtable.KindUpdate))).To(Equal(lsmtable.Before))
		Expect(lsmtable.InternalKeyOrder(ikey("b", 1, lsmtable.KindUpdate), ikey("a", 9, lsmtable.KindUpdate))).To(Equal(lsmtable.After))

		// newer first
		Expect(lsmtable.InternalKeyOrder(ikey("a", 9, lsmtable.KindUpdate), ikey("a", 1, lsmtable.KindUpdate))).To(Equal(lsmtable.Before))
		Expect(lsmtable.InternalKeyOrder(ikey("a", 1, lsmtable.KindUpdate), ikey("a", 9, lsmtable.KindUpdate))).To(Equal(lsmtable.After))
		Expect(lsmtable.InternalKeyOrder(ikey("a", 5, lsmtable.KindUpdate), ikey("a", 5, lsmtable.KindDelete))).To(Equal(lsmtable.Before))
		Expect(lsmtable.InternalKeyOrder(ikey("a", 5, lsmtable.KindUpdate), ikey("a", 5, lsmtable.KindUpdate))).To(Equal(lsmtable.Equal))

		// lookup keys sort before every version
		Expect(lsmtable.InternalKeyOrder(lsmtable.LookupKey([]byte("a")), ikey("a", 1<<40, lsmtable.KindUpdate))).To(Equal(lsmtable.Before))
	})

	It("should order by user key only", func() {
		Expect(lsmtable.UserKeyOrder(ikey("a", 9, lsmtable.KindUpdate), ikey("a", 1, lsmtable.KindDelete))).To(Equal(lsmtable.Equal))
		Expect(lsmtable.UserKeyOrder(ikey("a", 1, lsmtable.KindUpdate), ikey("b", 1, lsmtable.KindUpdate))).To(Equal(lsmtable.Before))
	})
})
