package document

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tempDir string
		storage *LocalStorage
		err     error
	)

	BeforeEach(func() {
		tempDir, err = os.MkdirTemp("", "docufield-storage-test-*")
		Expect(err).NotTo(HaveOccurred())
		storage, err = NewLocalStorage(tempDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tempDir)).To(Succeed())
	})

	Describe("Save and Get", func() {
		It("round-trips file contents", func() {
			path, err := storage.Save("upload.png", []byte("pixels"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("pixels")))
		})
	})

	Describe("Get", func() {
		It("fails for a missing file", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			path, err := storage.Save("upload.png", []byte("pixels"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete(path)).To(Succeed())

			_, err = storage.Get(path)
			Expect(err).To(HaveOccurred())
		})

		It("fails for a missing file", func() {
			Expect(storage.Delete("missing.png")).NotTo(Succeed())
		})
	})
})
