package composer

import (
	"github.com/moffa90/go-espimage/config"
	"github.com/moffa90/go-espimage/esptool"
)

// SynthesizeUploadCommand returns the esptool write_flash arguments that also
// flash the filesystem image, or nil when the default upload command already
// does the right thing.
//
// A command is produced only for the esptool protocol, when a filesystem image
// was built (fs is not nil) and it lives somewhere other than
// build.Filesystem.DefaultOffset. segments are written before the image.
func SynthesizeUploadCommand(build *config.BuildConfig, flashSize uint32, segments []esptool.Segment, fs *esptool.Segment) ([]string, error) {
	if build.Upload.Protocol != config.ProtocolEsptool || fs == nil {
		return nil, nil
	}
	if fs.Offset == build.Filesystem.DefaultOffset {
		return nil, nil
	}

	all := make([]esptool.Segment, 0, len(segments)+1)
	all = append(all, segments...)
	all = append(all, *fs)

	return esptool.BuildWriteFlashCmd(flashParams(build, flashSize), connection(build), all)
}

func flashParams(build *config.BuildConfig, flashSize uint32) esptool.FlashParams {
	return esptool.FlashParams{
		Chip: build.Chip,
		Mode: build.Flash.Mode,
		Freq: build.Flash.Freq,
		Size: esptool.FormatSize(flashSize),
	}
}

func connection(build *config.BuildConfig) esptool.Connection {
	return esptool.Connection{
		Port:   build.Upload.Port,
		Baud:   build.Upload.Speed,
		Before: build.Upload.BeforeReset,
		After:  build.Upload.AfterReset,
	}
}

func invocation(build *config.BuildConfig) esptool.Invocation {
	return esptool.Invocation{
		Python: build.Upload.Python,
		Tool:   build.Upload.Uploader,
	}
}
