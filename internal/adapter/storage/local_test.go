package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalStorage(t *testing.T) {
	Convey("Given a LocalStorage", t, func() {
		tempDir, err := os.MkdirTemp("", "local_storage_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		ctx := context.Background()

		Convey("NewLocal", func() {
			Convey("When creating with valid path", func() {
				storage, err := NewLocal(tempDir)

				Convey("It should create successfully", func() {
					So(err, ShouldBeNil)
					So(storage, ShouldNotBeNil)
					So(storage.basePath, ShouldEqual, tempDir)
				})
			})

			Convey("When creating with non-existent path", func() {
				newPath := filepath.Join(tempDir, "new", "nested", "dir")
				storage, err := NewLocal(newPath)

				Convey("It should create directory and succeed", func() {
					So(err, ShouldBeNil)
					So(storage, ShouldNotBeNil)

					info, err := os.Stat(newPath)
					So(err, ShouldBeNil)
					So(info.IsDir(), ShouldBeTrue)
				})
			})
		})

		Convey("Upload method", func() {
			storage, _ := NewLocal(filepath.Join(tempDir, "mirror"))

			sourceFile := filepath.Join(tempDir, "source.dump")
			So(os.WriteFile(sourceFile, []byte("test content"), 0644), ShouldBeNil)

			Convey("When uploading under a database prefix", func() {
				err := storage.Upload(ctx, sourceFile, "sales/sales_20260314_060000.dump")

				Convey("It should create the nested file", func() {
					So(err, ShouldBeNil)

					content, err := os.ReadFile(filepath.Join(tempDir, "mirror", "sales", "sales_20260314_060000.dump"))
					So(err, ShouldBeNil)
					So(string(content), ShouldEqual, "test content")
				})
			})

			Convey("When source file does not exist", func() {
				err := storage.Upload(ctx, "nonexistent.txt", "uploaded.txt")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to open source")
				})
			})

			Convey("When the name escapes the root", func() {
				err := storage.Upload(ctx, sourceFile, "../escaped.dump")

				Convey("It should refuse", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "escapes storage root")
					_, statErr := os.Stat(filepath.Join(tempDir, "escaped.dump"))
					So(os.IsNotExist(statErr), ShouldBeTrue)
				})
			})
		})

		Convey("List method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When directory has files", func() {
				os.WriteFile(filepath.Join(tempDir, "file1.txt"), []byte("test"), 0644)
				os.WriteFile(filepath.Join(tempDir, "file2.txt"), []byte("test"), 0644)
				os.MkdirAll(filepath.Join(tempDir, "subdir"), 0755)
				os.WriteFile(filepath.Join(tempDir, "subdir", "file3.txt"), []byte("test"), 0644)

				files, err := storage.List(ctx)

				Convey("It should list files with nested names", func() {
					So(err, ShouldBeNil)
					So(len(files), ShouldEqual, 3)
					So(files, ShouldContain, "file1.txt")
					So(files, ShouldContain, "file2.txt")
					So(files, ShouldContain, "subdir/file3.txt")
					So(files, ShouldNotContain, "subdir")
				})
			})

			Convey("When directory is empty", func() {
				emptyDir := filepath.Join(tempDir, "empty")
				os.Mkdir(emptyDir, 0755)
				storage, _ := NewLocal(emptyDir)

				files, err := storage.List(ctx)

				Convey("It should return empty list", func() {
					So(err, ShouldBeNil)
					So(len(files), ShouldEqual, 0)
				})
			})
		})

		Convey("Delete method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When deleting existing file", func() {
				testFile := "delete_me.txt"
				os.WriteFile(filepath.Join(tempDir, testFile), []byte("test"), 0644)

				err := storage.Delete(ctx, testFile)

				Convey("It should delete successfully", func() {
					So(err, ShouldBeNil)

					_, err := os.Stat(filepath.Join(tempDir, testFile))
					So(os.IsNotExist(err), ShouldBeTrue)
				})
			})

			Convey("When deleting non-existent file", func() {
				err := storage.Delete(ctx, "nonexistent.txt")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to delete file")
					So(os.IsNotExist(err), ShouldBeFalse)
				})
			})
		})

		Convey("GetOldFiles method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When finding old files", func() {
				oldFile := filepath.Join(tempDir, "old.txt")
				os.WriteFile(oldFile, []byte("test"), 0644)
				oldTime := time.Now().Add(-10 * 24 * time.Hour)
				os.Chtimes(oldFile, oldTime, oldTime)

				newFile := filepath.Join(tempDir, "new.txt")
				os.WriteFile(newFile, []byte("test"), 0644)

				cutoff := time.Now().Add(-7 * 24 * time.Hour)
				oldFiles, err := storage.GetOldFiles(ctx, cutoff)

				Convey("It should return only old files", func() {
					So(err, ShouldBeNil)
					So(len(oldFiles), ShouldEqual, 1)
					So(oldFiles[0], ShouldEqual, "old.txt")
				})
			})
		})

		Convey("GetPath method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When getting path for a nested name", func() {
				path := storage.GetPath("sales/test.dump")

				Convey("It should return full path", func() {
					So(path, ShouldEqual, filepath.Join(tempDir, "sales", "test.dump"))
				})
			})
		})
	})
}
