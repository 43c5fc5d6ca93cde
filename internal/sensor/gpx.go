package sensor

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/jengzang/trip-recorder-go/internal/models"
)

// defaultAccuracy is assumed for fixes that carry no hdop
const defaultAccuracy = 5.0

type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat    float64   `xml:"lat,attr"`
	Lon    float64   `xml:"lon,attr"`
	Time   time.Time `xml:"time"`
	Speed  *float64  `xml:"speed"`
	Course *float64  `xml:"course"`
	HDOP   *float64  `xml:"hdop"`
}

// ParseGPX reads every track point of a GPX document as a location sample,
// ordered by time. Points without a timestamp are skipped.
func ParseGPX(r io.Reader) ([]models.LocationSample, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode gpx: %w", err)
	}

	var samples []models.LocationSample
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				if p.Time.IsZero() {
					continue
				}
				s := models.LocationSample{
					Latitude:           p.Lat,
					Longitude:          p.Lon,
					Timestamp:          p.Time,
					HorizontalAccuracy: defaultAccuracy,
					Course:             -1,
					Speed:              -1,
				}
				if p.Speed != nil {
					s.Speed = *p.Speed
				}
				if p.Course != nil {
					s.Course = *p.Course
				}
				if p.HDOP != nil {
					s.HorizontalAccuracy = *p.HDOP * defaultAccuracy
				}
				samples = append(samples, s)
			}
		}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}

// ParseGPXFile parses the GPX document at path
func ParseGPXFile(path string) ([]models.LocationSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gpx file: %w", err)
	}
	defer f.Close()
	return ParseGPX(f)
}
