// Package tracker implements Trackers, which track and save data in an
// experiment, and the evaluation metrics of navigation episodes
package tracker

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/backtranslate"
)

// Record is a single datum of an experiment: the statistics of a
// training iteration or the outcome of an evaluation episode
type Record struct {
	// Iteration is the training iteration or the evaluation episode
	// index
	Iteration int

	Stats   *backtranslate.IterationStats // Set in training
	Outcome *Outcome                      // Set in evaluation
}

// Interface Tracker keeps track of experiment data and saves the data
// after the experiment has finished
type Tracker interface {
	Track(r Record)
	Save() error
}

// SaveData gob encodes data to filename
func SaveData(filename string, data []float64) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "saveData: could not open save file")
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(data); err != nil {
		return errors.Wrap(err, "saveData: could not encode data")
	}
	return file.Close()
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "loadData: could not open data file")
	}
	defer file.Close()

	var data []float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "loadData: could not decode data")
	}
	return data, nil
}
