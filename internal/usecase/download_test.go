package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/semmidev/dbwarden/internal/adapter/compressor"
	"github.com/semmidev/dbwarden/internal/adapter/encryption"
	"github.com/semmidev/dbwarden/internal/domain"
)

func readRelease(release *Release) string {
	rc, err := release.Open()
	So(err, ShouldBeNil)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	So(err, ShouldBeNil)
	return string(data)
}

func TestDownload(t *testing.T) {
	Convey("Given a Download with one artifact of each format", t, func() {
		ctx := context.Background()
		store := newMemStore()
		cipher := encryption.NewSecretBox()
		archiver := compressor.NewZip()
		uc := NewDownload(store, store, cipher, archiver, zap.NewNop().Sugar())

		cfg := &domain.BackupConfig{Database: "sales", Directory: t.TempDir(), Format: domain.FormatEncrypted, Password: "s3cret", TimesPerDay: 1}
		So(store.CreateConfig(ctx, cfg), ShouldBeNil)
		dir := cfg.Dir()
		So(os.MkdirAll(dir, 0755), ShouldBeNil)

		register := func(id, name string) *domain.Artifact {
			a := &domain.Artifact{ID: id, ConfigID: cfg.ID, Name: name, Path: filepath.Join(dir, name), CreatedAt: time.Now()}
			So(store.InsertArtifact(ctx, a), ShouldBeNil)
			return a
		}

		plain := register("plain", "sales_20260314_060000.dump")
		So(os.WriteFile(plain.Path, []byte("raw dump"), 0644), ShouldBeNil)

		enc := register("enc", "sales_20260314_120000.encrypted")
		sealed, err := cipher.Encrypt("s3cret", []byte("secret dump"))
		So(err, ShouldBeNil)
		So(os.WriteFile(enc.Path, sealed, 0644), ShouldBeNil)

		arc := register("arc", "sales_20260314_180000.zip")
		source := filepath.Join(t.TempDir(), "sales_raw.zip")
		So(os.WriteFile(source, []byte("archived dump"), 0644), ShouldBeNil)
		So(archiver.Wrap(source, "s3cret", arc.Path), ShouldBeNil)

		Convey("Authorize", func() {
			Convey("It passes unprotected files through without a password", func() {
				release, err := uc.Authorize(ctx, plain, "")
				So(err, ShouldBeNil)
				So(release.Kind, ShouldEqual, ReleasePassthrough)
				So(release.Name, ShouldEqual, plain.Name)
				So(readRelease(release), ShouldEqual, "raw dump")
			})

			Convey("It decrypts with the right password", func() {
				release, err := uc.Authorize(ctx, enc, "s3cret")
				So(err, ShouldBeNil)
				So(release.Kind, ShouldEqual, ReleaseDecrypted)
				So(release.Name, ShouldEqual, "sales_20260314_120000.dump")
				So(readRelease(release), ShouldEqual, "secret dump")
			})

			Convey("It refuses an encrypted file without a password and leaves it untouched", func() {
				before, _ := os.Stat(enc.Path)
				release, err := uc.Authorize(ctx, enc, "")
				So(release, ShouldBeNil)
				So(domain.IsKind(err, domain.ErrForbidden), ShouldBeTrue)

				after, err := os.Stat(enc.Path)
				So(err, ShouldBeNil)
				So(after.Size(), ShouldEqual, before.Size())
				So(after.ModTime(), ShouldEqual, before.ModTime())
			})

			Convey("A wrong password and a damaged file look the same", func() {
				_, wrongErr := uc.Authorize(ctx, enc, "guess")

				So(os.WriteFile(enc.Path, []byte("garbage"), 0644), ShouldBeNil)
				_, corruptErr := uc.Authorize(ctx, enc, "s3cret")

				So(errors.Is(wrongErr, domain.ErrWrongPasswordOrCorrupt), ShouldBeTrue)
				So(errors.Is(corruptErr, domain.ErrWrongPasswordOrCorrupt), ShouldBeTrue)
				So(wrongErr.Error(), ShouldEqual, corruptErr.Error())
			})

			Convey("It validates archives before releasing them as stored", func() {
				release, err := uc.Authorize(ctx, arc, "s3cret")
				So(err, ShouldBeNil)
				So(release.Kind, ShouldEqual, ReleaseArchive)
				So(release.Name, ShouldEqual, arc.Name)

				stored, _ := os.ReadFile(arc.Path)
				So(readRelease(release), ShouldEqual, string(stored))

				_, err = uc.Authorize(ctx, arc, "guess")
				So(errors.Is(err, domain.ErrWrongPasswordOrCorrupt), ShouldBeTrue)

				_, err = uc.Authorize(ctx, arc, "")
				So(domain.IsKind(err, domain.ErrForbidden), ShouldBeTrue)
			})
		})

		Convey("Fetch", func() {
			Convey("It resolves a registered file of the config", func() {
				release, err := uc.Fetch(ctx, cfg.ID, enc.Name, "s3cret")
				So(err, ShouldBeNil)
				So(readRelease(release), ShouldEqual, "secret dump")
			})

			Convey("It reports an unknown config as not found", func() {
				_, err := uc.Fetch(ctx, cfg.ID+10, enc.Name, "s3cret")
				So(domain.IsKind(err, domain.ErrNotFound), ShouldBeTrue)
			})

			Convey("It refuses names outside the config's files", func() {
				for _, name := range []string{"../../etc/passwd", "sales/x.dump", "", "..", "other.dump"} {
					_, err := uc.Fetch(ctx, cfg.ID, name, "s3cret")
					So(domain.IsKind(err, domain.ErrForbidden), ShouldBeTrue)
				}
			})

			Convey("It reports a registered but deleted file as not found", func() {
				So(os.Remove(plain.Path), ShouldBeNil)
				_, err := uc.Fetch(ctx, cfg.ID, plain.Name, "")
				So(domain.IsKind(err, domain.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("FetchDirect", func() {
			release, err := uc.FetchDirect(ctx, "arc", "s3cret")
			So(err, ShouldBeNil)
			So(release.Kind, ShouldEqual, ReleaseArchive)

			_, err = uc.FetchDirect(ctx, "missing", "s3cret")
			So(domain.IsKind(err, domain.ErrNotFound), ShouldBeTrue)
		})

		Convey("Decrypt", func() {
			Convey("It decrypts an uploaded blob", func() {
				release, err := uc.Decrypt("C:\\downloads\\sales_20260314_120000.encrypted", sealed, "s3cret")
				So(err, ShouldBeNil)
				So(release.Name, ShouldEqual, "sales_20260314_120000.dump")
				So(readRelease(release), ShouldEqual, "secret dump")
			})

			Convey("It requires a file and a password", func() {
				_, err := uc.Decrypt("x.encrypted", nil, "s3cret")
				So(domain.IsKind(err, domain.ErrConfig), ShouldBeTrue)
				_, err = uc.Decrypt("x.encrypted", sealed, "")
				So(domain.IsKind(err, domain.ErrConfig), ShouldBeTrue)
			})

			Convey("It rejects a wrong password", func() {
				_, err := uc.Decrypt("x.encrypted", sealed, "guess")
				So(errors.Is(err, domain.ErrWrongPasswordOrCorrupt), ShouldBeTrue)
			})
		})
	})
}
