package backend

import (
	"debug/macho"
	"errors"

	"github.com/danpilch/flamegraph/pkg/errdefs"
)

// archPreference picks the architecture dtrace should launch program under.
// Native wins when the binary supports it; a thin binary of a foreign
// architecture gets that architecture. "" means no hint is needed.
func archPreference(program string, lookPath func(string) (string, error)) (string, error) {
	path, err := lookPath(program)
	if err != nil {
		return "", errdefs.Wrapf(errdefs.ErrIO, err, "cannot locate %s", program)
	}
	arches, err := machoArches(path)
	if err != nil {
		return "", err
	}
	return pickArch(nativeArch(), arches), nil
}

func pickArch(native string, arches []string) string {
	for _, a := range arches {
		if a == native {
			return native
		}
	}
	if len(arches) == 1 {
		return arches[0]
	}
	return ""
}

// machoArches lists the architectures in a thin or fat Mach-O file.
func machoArches(path string) ([]string, error) {
	fat, err := macho.OpenFat(path)
	if err == nil {
		defer fat.Close()
		var arches []string
		for _, a := range fat.Arches {
			if name := cpuName(a.Cpu); name != "" {
				arches = append(arches, name)
			}
		}
		return arches, nil
	}
	if !errors.Is(err, macho.ErrNotFat) {
		var formatErr *macho.FormatError
		if !errors.As(err, &formatErr) {
			return nil, errdefs.Wrapf(errdefs.ErrIO, err, "cannot read %s", path)
		}
	}

	thin, err := macho.Open(path)
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrParse, err, "%s is not a Mach-O binary", path)
	}
	defer thin.Close()
	if name := cpuName(thin.Cpu); name != "" {
		return []string{name}, nil
	}
	return nil, nil
}

func cpuName(cpu macho.Cpu) string {
	switch cpu {
	case macho.CpuArm64:
		return "arm64"
	case macho.CpuAmd64:
		return "x86_64"
	case macho.CpuArm:
		return "arm"
	case macho.Cpu386:
		return "i386"
	}
	return ""
}
