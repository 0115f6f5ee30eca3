package catalog

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/arcade-scan/internal/scanning"
)

var _ = Describe("BoltDB", func() {
	var (
		db   *BoltDB
		item *Item
	)

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "catalog.db"))
		Expect(err).NotTo(HaveOccurred())

		item = &Item{
			ID:        "item-1",
			Barcode:   "MACHINE_0042",
			Name:      "Pac-Man",
			Category:  scanning.CategoryMachine,
			CreatedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		}
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveItem", func() {
		It("should store the item under its category", func() {
			Expect(db.SaveItem(item)).To(Succeed())

			saved, err := db.GetItem(scanning.CategoryMachine, "MACHINE_0042")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Name).To(Equal("Pac-Man"))
			Expect(saved.ID).To(Equal("item-1"))
		})

		It("should reject an unknown category", func() {
			item.Category = scanning.CategoryUnknown
			Expect(db.SaveItem(item)).To(MatchError(ErrUnknownCategory))
		})
	})

	Describe("GetItem", func() {
		BeforeEach(func() {
			Expect(db.SaveItem(item)).To(Succeed())
		})

		It("should ignore case and surrounding space", func() {
			saved, err := db.GetItem(scanning.CategoryMachine, "  machine_0042 ")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Barcode).To(Equal("MACHINE_0042"))
		})

		It("should not find the barcode in another category", func() {
			_, err := db.GetItem(scanning.CategoryPrize, "MACHINE_0042")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should report missing barcodes", func() {
			_, err := db.GetItem(scanning.CategoryMachine, "MACHINE_9999")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListItems", func() {
		It("should return an empty list for an empty category", func() {
			items, err := db.ListItems(scanning.CategoryPart)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
		})

		It("should return items ordered by barcode", func() {
			Expect(db.SaveItem(&Item{ID: "b", Barcode: "PRIZE_B", Category: scanning.CategoryPrize})).To(Succeed())
			Expect(db.SaveItem(&Item{ID: "a", Barcode: "PRIZE_A", Category: scanning.CategoryPrize})).To(Succeed())

			items, err := db.ListItems(scanning.CategoryPrize)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
			Expect(items[0].ID).To(Equal("a"))
			Expect(items[1].ID).To(Equal("b"))
		})
	})

	Describe("DeleteItem", func() {
		It("should remove the item", func() {
			Expect(db.SaveItem(item)).To(Succeed())
			Expect(db.DeleteItem(scanning.CategoryMachine, "machine_0042")).To(Succeed())

			_, err := db.GetItem(scanning.CategoryMachine, "MACHINE_0042")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should not fail for a missing item", func() {
			Expect(db.DeleteItem(scanning.CategoryPart, "PART_1")).To(Succeed())
		})
	})

	When("reopened", func() {
		It("should keep saved items", func() {
			path := filepath.Join(GinkgoT().TempDir(), "reopen.db")
			first, err := NewBoltDB(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.SaveItem(item)).To(Succeed())
			Expect(first.Close()).To(Succeed())

			second, err := NewBoltDB(path)
			Expect(err).NotTo(HaveOccurred())
			defer second.Close()
			_, err = second.GetItem(scanning.CategoryMachine, "MACHINE_0042")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
