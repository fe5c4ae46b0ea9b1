package pointcloud

import (
	"image/color"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/vct/logging"
)

// LAS point record formats in use here.
const (
	lasFormatPlain   = 0
	lasFormatRGB     = 2
	lasFormatGPSRGB  = 3
	lasSingleReturn  = 1 | 1<<3
	lasColorScale    = 256
	lasPointSourceID = 1
)

var lasDefaultColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// NewFromLASFile reads a LAS file. Positions are used as stored. Points of the RGB formats are
// colored; points of the other formats are not.
func NewFromLASFile(fn string, logger logging.Logger) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, errors.Wrapf(err, "opening LAS file %q", fn)
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	cloud := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		lp, err := lf.LasPoint(i)
		if err != nil {
			return nil, errors.Wrapf(err, "LAS point %d", i)
		}
		rec := lp.PointData()
		if err := cloud.Set(r3.Vector{X: rec.X, Y: rec.Y, Z: rec.Z}, fromLASPoint(lp)); err != nil {
			return nil, errors.Wrapf(err, "LAS point %d", i)
		}
	}
	logger.Debugw("read LAS file", "file", fn, "points", cloud.Size(), "format", lf.Header.PointFormatID)
	return cloud, nil
}

func fromLASPoint(lp lidario.LasPointer) Data {
	switch lp.Format() {
	case lasFormatRGB, lasFormatGPSRGB:
		rgb := lp.RgbData()
		return NewColoredData(color.NRGBA{
			R: uint8(rgb.Red / lasColorScale),
			G: uint8(rgb.Green / lasColorScale),
			B: uint8(rgb.Blue / lasColorScale),
			A: 255,
		})
	default:
		return NewBasicData()
	}
}

// WriteToLASFile writes cloud to fn. A cloud with any colored point is written in the RGB format,
// its uncolored points as white. LAS files cannot be empty.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	if cloud.Size() == 0 {
		return errors.New("cannot write an empty point cloud as LAS")
	}
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return errors.Wrapf(err, "creating LAS file %q", fn)
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	colored := cloud.MetaData().HasColor
	format := byte(lasFormatPlain)
	if colored {
		format = lasFormatRGB
	}
	if err := lf.AddHeader(lidario.LasHeader{PointFormatID: format}); err != nil {
		return err
	}

	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		err = lf.AddLasPoint(toLASPoint(p, d, colored))
		return err == nil
	})
	return err
}

func toLASPoint(p r3.Vector, d Data, colored bool) lidario.LasPointer {
	rec := &lidario.PointRecord0{
		X:             p.X,
		Y:             p.Y,
		Z:             p.Z,
		BitField:      lidario.PointBitField{Value: lasSingleReturn},
		PointSourceID: lasPointSourceID,
	}
	if !colored {
		return rec
	}
	c := lasDefaultColor
	if d != nil && d.HasColor() {
		c = d.Color()
	}
	return &lidario.PointRecord2{
		PointRecord0: rec,
		RGB: &lidario.RgbData{
			Red:   uint16(c.R) * lasColorScale,
			Green: uint16(c.G) * lasColorScale,
			Blue:  uint16(c.B) * lasColorScale,
		},
	}
}
