package lsmtable_test

import (
	"bytes"

	"github.com/bsm/lsmtable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("MergeIterator", func() {
	blockOf := func(keys ...[]byte) lsmtable.Iterator {
		bb := lsmtable.NewBlockBuilder(2)
		for _, k := range keys {
			Expect(bb.Add(k, k)).To(Succeed())
		}
		b, err := lsmtable.NewBlock(bb.Finish())
		Expect(err).NotTo(HaveOccurred())
		return b.NewIterator(lsmtable.InternalKeyOrder)
	}

	It("should merge tables", func() {
		const numEntries = 1024

		older, err := seedReader(seedEntries(numEntries, 1), nil)
		Expect(err).NotTo(HaveOccurred())
		defer older.Close()

		newer, err := seedReader(seedEntries(numEntries, 2), nil)
		Expect(err).NotTo(HaveOccurred())
		defer newer.Close()

		subject := lsmtable.NewMergeIterator(nil, older.NewIterator(), newer.NewIterator())
		defer subject.Release()

		keys := collect(subject, false)
		Expect(keys).To(HaveLen(2 * numEntries))
		for i := 0; i < len(keys); i += 2 {
			Expect(keys[i].UserKey).To(Equal(keys[i+1].UserKey))
			Expect(keys[i].Sequence).To(Equal(uint64(2)))
			Expect(keys[i+1].Sequence).To(Equal(uint64(1)))
			if i > 0 {
				Expect(bytes.Compare(keys[i-1].UserKey, keys[i].UserKey)).To(Equal(-1))
			}
		}

		rkeys := collect(subject, true)
		Expect(rkeys).To(HaveLen(2 * numEntries))
		for i := range rkeys {
			Expect(rkeys[i]).To(Equal(keys[len(keys)-1-i]))
		}
	})

	It("should interleave sources", func() {
		subject := lsmtable.NewMergeIterator(nil,
			blockOf(ikey("a", 1, lsmtable.KindUpdate), ikey("c", 1, lsmtable.KindUpdate), ikey("e", 1, lsmtable.KindUpdate)),
			blockOf(ikey("b", 1, lsmtable.KindUpdate), ikey("d", 1, lsmtable.KindUpdate)),
		)
		defer subject.Release()

		var seen []string
		for _, ik := range collect(subject, false) {
			seen = append(seen, string(ik.UserKey))
		}
		Expect(seen).To(Equal([]string{"a", "b", "c", "d", "e"}))

		subject.Seek(ikey("b", 5, lsmtable.KindUpdate))
		Expect(subject.Valid()).To(BeTrue())
		Expect(subject.Key()).To(Equal(ikey("b", 1, lsmtable.KindUpdate)))
		Expect(subject.Value()).To(Equal(ikey("b", 1, lsmtable.KindUpdate)))
	})

	It("should change direction", func() {
		subject := lsmtable.NewMergeIterator(nil,
			blockOf(ikey("a", 1, lsmtable.KindUpdate), ikey("c", 1, lsmtable.KindUpdate), ikey("e", 1, lsmtable.KindUpdate)),
			blockOf(ikey("b", 1, lsmtable.KindUpdate), ikey("d", 1, lsmtable.KindUpdate)),
		)
		defer subject.Release()

		userKey := func() string {
			ik, err := lsmtable.DecodeInternalKey(subject.Key())
			Expect(err).NotTo(HaveOccurred())
			return string(ik.UserKey)
		}

		subject.Seek(ikey("c", 1, lsmtable.KindUpdate))
		Expect(userKey()).To(Equal("c"))
		subject.Prev()
		Expect(userKey()).To(Equal("b"))
		subject.Prev()
		Expect(userKey()).To(Equal("a"))
		subject.Next()
		Expect(userKey()).To(Equal("b"))
		subject.Next()
		Expect(userKey()).To(Equal("c"))
		subject.Next()
		Expect(userKey()).To(Equal("d"))

		subject.SeekForLast()
		Expect(userKey()).To(Equal("e"))
		subject.Prev()
		Expect(userKey()).To(Equal("d"))
		subject.Next()
		Expect(userKey()).To(Equal("e"))
		subject.Next()
		Expect(subject.Valid()).To(BeFalse())
	})

	It("should prefer the first source on ties", func() {
		k := ikey("a", 1, lsmtable.KindUpdate)

		bb := lsmtable.NewBlockBuilder(16)
		Expect(bb.Add(k, []byte("second"))).To(Succeed())
		b, err := lsmtable.NewBlock(bb.Finish())
		Expect(err).NotTo(HaveOccurred())

		subject := lsmtable.NewMergeIterator(nil, blockOf(k), b.NewIterator(lsmtable.InternalKeyOrder))
		defer subject.Release()

		subject.SeekForFirst()
		Expect(subject.Value()).To(Equal(k))
		subject.Next()
		Expect(subject.Value()).To(Equal([]byte("second")))
		subject.Next()
		Expect(subject.Valid()).To(BeFalse())
	})

	It("should handle empty sources", func() {
		subject := lsmtable.NewMergeIterator(nil)
		subject.SeekForFirst()
		Expect(subject.Valid()).To(BeFalse())
		subject.SeekForLast()
		Expect(subject.Valid()).To(BeFalse())
		Expect(subject.Err()).NotTo(HaveOccurred())
		subject.Release()

		subject = lsmtable.NewMergeIterator(lsmtable.InternalKeyOrder, blockOf(), blockOf(ikey("x", 1, lsmtable.KindUpdate)))
		defer subject.Release()
		Expect(collect(subject, false)).To(HaveLen(1))
	})
})
