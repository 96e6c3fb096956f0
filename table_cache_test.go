package lsmtable_test

import (
	"os"
	"path/filepath"

	"github.com/bsm/lsmtable"
	"github.com/bsm/lsmtable/cache"
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("TableCache", func() {
	var dir string
	var subject *lsmtable.TableCache
	var blocks *cache.Cache

	writeFile := func(num uint64, entries []testEntry) {
		w, err := lsmtable.Create(lsmtable.TableFileName(dir, num), nil)
		Expect(err).NotTo(HaveOccurred())
		for _, e := range entries {
			Expect(w.Append(e.Key, e.Value)).To(Succeed())
		}
		Expect(w.Close()).To(Succeed())
	}

	get := func(num uint64, userKey string) (string, error) {
		var val string
		err := subject.Get(num, lsmtable.LookupKey([]byte(userKey)), func(_, v []byte) {
			val = string(v)
		})
		return val, err
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "lsmtable-table-cache")
		Expect(err).NotTo(HaveOccurred())

		writeFile(1, []testEntry{
			{Key: ikey("a", 1, lsmtable.KindUpdate), Value: []byte("a1")},
			{Key: ikey("b", 1, lsmtable.KindUpdate), Value: []byte("b1")},
		})
		writeFile(2, []testEntry{
			{Key: ikey("a", 2, lsmtable.KindUpdate), Value: []byte("a2")},
			{Key: ikey("c", 2, lsmtable.KindUpdate), Value: []byte("c2")},
		})

		blocks = cache.New(1<<20, nil)
		subject = lsmtable.NewTableCache(dir, &lsmtable.TableCacheOptions{Entries: 1, BlockCache: blocks})
	})

	AfterEach(func() {
		Expect(subject.Close()).To(Succeed())
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("should name files", func() {
		Expect(lsmtable.TableFileName("/data", 7)).To(Equal(filepath.Join("/data", "000007.sst")))
		Expect(lsmtable.TableFileName("/data", 1234567)).To(Equal(filepath.Join("/data", "1234567.sst")))
	})

	It("should get", func() {
		Expect(get(1, "a")).To(Equal("a1"))
		Expect(get(2, "a")).To(Equal("a2"))
		Expect(get(1, "b")).To(Equal("b1"))
		Expect(get(2, "c")).To(Equal("c2"))

		_, err := get(1, "c")
		Expect(err).To(MatchError(lsmtable.ErrNotFound))

		_, err = get(3, "a")
		Expect(errors.Is(err, lsmtable.ErrNotFound)).To(BeTrue())
	})

	It("should close evicted tables", func() {
		Expect(get(1, "a")).To(Equal("a1"))
		Expect(blocks.TotalCharge()).To(BeNumerically(">", 0))

		subject.Evict(1)
		Expect(blocks.TotalCharge()).To(BeZero())
		Expect(get(1, "a")).To(Equal("a1"))
	})

	It("should pin tables for iterators", func() {
		iter, err := subject.NewIterator(1)
		Expect(err).NotTo(HaveOccurred())

		// table 1 is evicted, but stays open until the iterator is released
		Expect(get(2, "c")).To(Equal("c2"))
		subject.Evict(1)

		var seen []string
		for iter.SeekForFirst(); iter.Valid(); iter.Next() {
			seen = append(seen, string(iter.Value()))
		}
		Expect(iter.Err()).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]string{"a1", "b1"}))
		iter.Release()

		_, err = subject.NewIterator(3)
		Expect(errors.Is(err, lsmtable.ErrNotFound)).To(BeTrue())
	})

	It("should merge tables", func() {
		it1, err := subject.NewIterator(1)
		Expect(err).NotTo(HaveOccurred())
		it2, err := subject.NewIterator(2)
		Expect(err).NotTo(HaveOccurred())

		merged := lsmtable.NewMergeIterator(nil, it2, it1)
		defer merged.Release()

		var seen []string
		for merged.SeekForFirst(); merged.Valid(); merged.Next() {
			seen = append(seen, string(merged.Value()))
		}
		Expect(seen).To(Equal([]string{"a2", "a1", "b1", "c2"}))
	})
})
