// Package tagging rewrites container metadata after an extraction. Source
// tags are dropped and replaced with canonical values from the catalog.
package tagging

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
)

// TrackTags is the canonical tag set written to every container.
type TrackTags struct {
	Artists     string
	Title       string
	Album       *string
	Genre       *string
	BPM         *int
	ISRC        *string
	ReleaseDate *string // YYYY-MM-DD
}

// Tagger carries the ffmpeg path needed for the MP4 remux path. MP3 and
// FLAC are rewritten in-process.
type Tagger struct {
	ffmpegBin string
}

func New(ffmpegBin string) *Tagger {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &Tagger{ffmpegBin: ffmpegBin}
}

// TagFile dispatches on the container extension. Cover data, when
// non-empty, is embedded as the front cover.
func (t *Tagger) TagFile(path string, tags TrackTags, cover []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return tagMP3(path, tags, cover)
	case ".flac":
		return tagFLAC(path, tags, cover)
	case ".m4a", ".mp4":
		return t.tagM4A(path, tags, cover)
	default:
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

// tagMP3 writes ID3v2.3 frames. Existing frames are dropped first so no
// source-derived metadata survives.
func tagMP3(path string, tags TrackTags, cover []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3: %w", err)
	}
	defer tag.Close() //nolint:errcheck // closed after save

	tag.DeleteAllFrames()
	tag.SetVersion(3)
	tag.SetDefaultEncoding(id3v2.EncodingUTF16)

	tag.SetArtist(tags.Artists)
	tag.SetTitle(tags.Title)
	if tags.Album != nil && *tags.Album != "" {
		tag.SetAlbum(*tags.Album)
	}
	if tags.Genre != nil && *tags.Genre != "" {
		tag.SetGenre(*tags.Genre)
	}
	if tags.BPM != nil && *tags.BPM > 0 {
		tag.AddTextFrame("TBPM", tag.DefaultEncoding(), fmt.Sprintf("%d", *tags.BPM))
	}
	if tags.ISRC != nil && *tags.ISRC != "" {
		tag.AddTextFrame(tag.CommonID("ISRC"), tag.DefaultEncoding(), *tags.ISRC)
	}
	if tags.ReleaseDate != nil && *tags.ReleaseDate != "" {
		date := *tags.ReleaseDate
		// Full date goes to the grouping frame; TYER carries the year
		// for v2.3 players.
		tag.AddTextFrame("TIT1", tag.DefaultEncoding(), date)
		if len(date) >= 4 {
			tag.AddTextFrame("TYER", tag.DefaultEncoding(), date[:4])
		}
	}
	if len(cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    detectImageMIME(cover),
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     cover,
		})
	}

	return tag.Save()
}

// tagFLAC replaces the Vorbis comment and picture blocks, keeping every
// other metadata block untouched.
func tagFLAC(path string, tags TrackTags, cover []byte) error {
	f, err := goflac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse flac: %w", err)
	}

	kept := f.Meta[:0]
	for _, block := range f.Meta {
		if block.Type == goflac.VorbisComment || block.Type == goflac.Picture {
			continue
		}
		kept = append(kept, block)
	}
	f.Meta = kept

	cmt := flacvorbis.New()
	addTag := func(field, value string) error {
		if value == "" {
			return nil
		}
		return cmt.Add(field, value)
	}
	if err := addTag(flacvorbis.FIELD_ARTIST, tags.Artists); err != nil {
		return err
	}
	if err := addTag(flacvorbis.FIELD_TITLE, tags.Title); err != nil {
		return err
	}
	if tags.Album != nil {
		if err := addTag(flacvorbis.FIELD_ALBUM, *tags.Album); err != nil {
			return err
		}
	}
	if tags.Genre != nil {
		if err := addTag(flacvorbis.FIELD_GENRE, *tags.Genre); err != nil {
			return err
		}
	}
	if tags.BPM != nil && *tags.BPM > 0 {
		if err := addTag("BPM", fmt.Sprintf("%d", *tags.BPM)); err != nil {
			return err
		}
	}
	if tags.ISRC != nil {
		if err := addTag(flacvorbis.FIELD_ISRC, *tags.ISRC); err != nil {
			return err
		}
	}
	if tags.ReleaseDate != nil {
		if err := addTag(flacvorbis.FIELD_DATE, *tags.ReleaseDate); err != nil {
			return err
		}
	}
	cmtBlock := cmt.Marshal()
	f.Meta = append(f.Meta, &cmtBlock)

	if len(cover) > 0 {
		pic, err := flacpicture.NewFromImageData(
			flacpicture.PictureTypeFrontCover, "Front Cover", cover, detectImageMIME(cover))
		if err != nil {
			return fmt.Errorf("failed to build flac picture: %w", err)
		}
		picBlock := pic.Marshal()
		f.Meta = append(f.Meta, &picBlock)
	}

	return f.Save(path)
}

func detectImageMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if idx := strings.Index(mime, ";"); idx != -1 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}
