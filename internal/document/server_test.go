package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/docufield/docufield/internal/recognize"
)

// multipartUpload builds a multipart body with a single "file" part.
func multipartUpload(filename string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		engine      *mockEngine
		storage     *mockStorage
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		engine = newMockEngine()
		storage = newMockStorage()
		service = newTestService(db, engine, storage)
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleExtract", func() {
		When("uploading a valid image", func() {
			var resp *http.Response

			JustBeforeEach(func() {
				body, contentType := multipartUpload("scan.png", pngUpload())
				var err error
				resp, err = http.Post(ghttpServer.URL()+"/api/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
			})

			AfterEach(func() {
				resp.Body.Close()
			})

			It("should return status Created", func() {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			})

			It("returns the filename, fields and raw text", func() {
				var result struct {
					Filename string             `json:"filename"`
					Fields   map[string]*string `json:"fields"`
					RawText  string             `json:"raw_text"`
				}
				Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
				Expect(result.Filename).To(Equal("scan.png"))
				Expect(result.Fields["id"]).To(HaveValue(Equal("9876")))
				Expect(result.RawText).To(ContainSubstring("Receipt"))
			})
		})

		When("a field is absent", func() {
			BeforeEach(func() {
				engine.text = "Date: 2025-07-15"
			})

			It("serializes the field as JSON null, not an empty string", func() {
				body, contentType := multipartUpload("scan.png", pngUpload())
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				raw, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())

				var result map[string]json.RawMessage
				Expect(json.Unmarshal(raw, &result)).To(Succeed())
				var fields map[string]json.RawMessage
				Expect(json.Unmarshal(result["fields"], &fields)).To(Succeed())
				Expect(string(fields["total"])).To(Equal("null"))
				Expect(string(fields["date"])).To(Equal(`"2025-07-15"`))
			})
		})

		When("uploading an undecodable file", func() {
			It("should return status Bad Request", func() {
				body, contentType := multipartUpload("junk.bin", []byte("not an image"))
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("no file part is present", func() {
			It("should return status Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/extract", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the recognition backend is unreachable", func() {
			BeforeEach(func() {
				engine.err = fmt.Errorf("%w: connection refused", recognize.ErrUnavailable)
			})

			It("should return status Bad Gateway", func() {
				body, contentType := multipartUpload("scan.png", pngUpload())
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})

		When("the recognition engine errors", func() {
			BeforeEach(func() {
				engine.err = fmt.Errorf("garbled image")
			})

			It("should return status Internal Server Error", func() {
				body, contentType := multipartUpload("scan.png", pngUpload())
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleListExtractions", func() {
		When("extractions exist", func() {
			BeforeEach(func() {
				db.extractions["id1"] = &Extraction{ID: "id1", Filename: "a.png"}
				db.extractions["id2"] = &Extraction{ID: "id2", Filename: "b.png"}
			})

			It("returns all extractions", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var extractions []*Extraction
				Expect(json.NewDecoder(resp.Body).Decode(&extractions)).To(Succeed())
				Expect(extractions).To(HaveLen(2))
			})
		})
	})

	Describe("handleGetExtraction", func() {
		When("the extraction exists", func() {
			BeforeEach(func() {
				db.extractions["id1"] = &Extraction{ID: "id1", Filename: "a.png"}
			})

			It("returns it", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions/id1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("the extraction does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions/missing")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleDeleteExtraction", func() {
		BeforeEach(func() {
			db.extractions["id1"] = &Extraction{ID: "id1", StoredPath: "id1_a.png"}
		})

		It("should return status No Content", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/extractions/id1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.extractions).To(BeEmpty())
		})
	})

	Describe("handleListFields", func() {
		It("returns the default schema", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/fields")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var fields map[string][]string
			Expect(json.NewDecoder(resp.Body).Decode(&fields)).To(Succeed())
			Expect(fields).To(HaveKey("total"))
			Expect(fields).To(HaveKey("change"))
		})
	})

	Describe("handlePutField", func() {
		putField := func(name, body string) *http.Response {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/fields/"+name, bytes.NewBufferString(body))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the patterns are valid", func() {
			It("should return status No Content and update the schema", func() {
				resp := putField("vendor", `{"patterns": ["Vendor\\s*:\\s*(\\w+)"]}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(service.Fields()).To(HaveKey("vendor"))
			})
		})

		When("a pattern has no capture groups", func() {
			It("should return status Unprocessable Entity", func() {
				resp := putField("vendor", `{"patterns": ["Vendor"]}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				resp := putField("vendor", `nope`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		When("no credentials are provided", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("valid credentials are provided", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/extractions", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})
})
