package archive

import (
	"context"
	"errors"
	"io"
)

// ErrStopWalk ends a Walk early without error.
var ErrStopWalk = errors.New("stop walk")

// VisitFunc receives each regular file member in archive order. body is only
// valid until the function returns. Returning ErrStopWalk ends the walk.
type VisitFunc func(member Member, body io.Reader) error

// ProgressFunc observes compressed bytes consumed against the archive size.
type ProgressFunc func(member string, consumed, total int64)

// WalkOptions tunes a walk.
type WalkOptions struct {
	Progress ProgressFunc
}

// Walk streams every regular file member of the archive at location through
// visit. Directory entries are not visited.
func Walk(ctx context.Context, location string, visit VisitFunc, opts WalkOptions) error {
	reader, err := Open(location)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return wrapNextError(location, err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		member := Member{Name: normalizeMemberName(hdr.Name), Size: hdr.Size}
		body := io.Reader(&memberReader{ctx: ctx, name: member.Name, r: reader})
		if opts.Progress != nil {
			body = &progressReader{r: body, member: member.Name, reader: reader, fn: opts.Progress}
		}
		if err := visit(member, body); err != nil {
			if errors.Is(err, ErrStopWalk) {
				return nil
			}
			return err
		}
		if opts.Progress != nil {
			opts.Progress(member.Name, reader.Consumed(), reader.Size)
		}
	}
}

type progressReader struct {
	r      io.Reader
	member string
	reader *Reader
	fn     ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.fn(p.member, p.reader.Consumed(), p.reader.Size)
	return n, err
}
