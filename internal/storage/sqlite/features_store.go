package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/sfm/internal/matching"
	"github.com/banshee-data/sfm/internal/sfm"
)

// FeaturesAndMatchesStore is a matching.Database backed by SQLite. Values
// are stored as JSON documents keyed by image name.
type FeaturesAndMatchesStore struct {
	db *sql.DB
}

var _ matching.Database = (*FeaturesAndMatchesStore)(nil)

// NewFeaturesAndMatchesStore creates a store on db.
func NewFeaturesAndMatchesStore(db *sql.DB) *FeaturesAndMatchesStore {
	return &FeaturesAndMatchesStore{db: db}
}

// GetCameraIntrinsicsPrior implements matching.Database.
func (s *FeaturesAndMatchesStore) GetCameraIntrinsicsPrior(name string) (sfm.CameraIntrinsicsPrior, error) {
	var prior sfm.CameraIntrinsicsPrior
	var raw string
	err := s.db.QueryRow(`SELECT prior_json FROM camera_intrinsics_priors WHERE image_name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return prior, fmt.Errorf("camera intrinsics prior %q: %w", name, matching.ErrNotFound)
	}
	if err != nil {
		return prior, fmt.Errorf("query prior %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return prior, fmt.Errorf("decode prior %q: %w", name, err)
	}
	return prior, nil
}

// PutCameraIntrinsicsPrior implements matching.Database.
func (s *FeaturesAndMatchesStore) PutCameraIntrinsicsPrior(name string, prior sfm.CameraIntrinsicsPrior) error {
	raw, err := json.Marshal(prior)
	if err != nil {
		return fmt.Errorf("encode prior %q: %w", name, err)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO camera_intrinsics_priors (image_name, prior_json) VALUES (?, ?)
			ON CONFLICT(image_name) DO UPDATE SET prior_json = excluded.prior_json`,
			name, string(raw))
		return err
	})
}

// ImageNamesOfCameraIntrinsicsPriors implements matching.Database.
func (s *FeaturesAndMatchesStore) ImageNamesOfCameraIntrinsicsPriors() ([]string, error) {
	return s.names(`SELECT image_name FROM camera_intrinsics_priors ORDER BY image_name`)
}

// GetFeatures implements matching.Database.
func (s *FeaturesAndMatchesStore) GetFeatures(name string) (matching.KeypointsAndDescriptors, error) {
	var kd matching.KeypointsAndDescriptors
	var raw string
	err := s.db.QueryRow(`SELECT features_json FROM image_features WHERE image_name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return kd, fmt.Errorf("features %q: %w", name, matching.ErrNotFound)
	}
	if err != nil {
		return kd, fmt.Errorf("query features %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), &kd); err != nil {
		return kd, fmt.Errorf("decode features %q: %w", name, err)
	}
	return kd, nil
}

// PutFeatures implements matching.Database.
func (s *FeaturesAndMatchesStore) PutFeatures(name string, features matching.KeypointsAndDescriptors) error {
	raw, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("encode features %q: %w", name, err)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO image_features (image_name, num_keypoints, features_json) VALUES (?, ?, ?)
			ON CONFLICT(image_name) DO UPDATE SET
				num_keypoints = excluded.num_keypoints,
				features_json = excluded.features_json`,
			name, len(features.Keypoints), string(raw))
		return err
	})
}

// ImageNamesOfFeatures implements matching.Database.
func (s *FeaturesAndMatchesStore) ImageNamesOfFeatures() ([]string, error) {
	return s.names(`SELECT image_name FROM image_features ORDER BY image_name`)
}

// GetImagePairMatch implements matching.Database.
func (s *FeaturesAndMatchesStore) GetImagePairMatch(name1, name2 string) (matching.ImagePairMatch, error) {
	m := matching.ImagePairMatch{Image1: name1, Image2: name2}
	var infoRaw, corrRaw string
	err := s.db.QueryRow(`
		SELECT two_view_info_json, correspondences_json
		FROM image_pair_matches
		WHERE image1 = ? AND image2 = ?`, name1, name2).Scan(&infoRaw, &corrRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("match %q-%q: %w", name1, name2, matching.ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("query match %q-%q: %w", name1, name2, err)
	}
	if err := json.Unmarshal([]byte(infoRaw), &m.TwoViewInfo); err != nil {
		return m, fmt.Errorf("decode two view info %q-%q: %w", name1, name2, err)
	}
	if err := json.Unmarshal([]byte(corrRaw), &m.Correspondences); err != nil {
		return m, fmt.Errorf("decode correspondences %q-%q: %w", name1, name2, err)
	}
	return m, nil
}

// PutImagePairMatch implements matching.Database.
func (s *FeaturesAndMatchesStore) PutImagePairMatch(name1, name2 string, match matching.ImagePairMatch) error {
	infoRaw, err := json.Marshal(match.TwoViewInfo)
	if err != nil {
		return fmt.Errorf("encode two view info %q-%q: %w", name1, name2, err)
	}
	corrRaw, err := json.Marshal(match.Correspondences)
	if err != nil {
		return fmt.Errorf("encode correspondences %q-%q: %w", name1, name2, err)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO image_pair_matches (
				image1, image2, num_verified_matches, two_view_info_json, correspondences_json
			) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(image1, image2) DO UPDATE SET
				num_verified_matches = excluded.num_verified_matches,
				two_view_info_json = excluded.two_view_info_json,
				correspondences_json = excluded.correspondences_json`,
			name1, name2, match.TwoViewInfo.NumVerifiedMatches, string(infoRaw), string(corrRaw))
		return err
	})
}

// ImageNamesOfMatches implements matching.Database.
func (s *FeaturesAndMatchesStore) ImageNamesOfMatches() ([]matching.ImageNamePair, error) {
	rows, err := s.db.Query(`SELECT image1, image2 FROM image_pair_matches ORDER BY image1, image2`)
	if err != nil {
		return nil, fmt.Errorf("query match pairs: %w", err)
	}
	defer rows.Close()

	var pairs []matching.ImageNamePair
	for rows.Next() {
		var p matching.ImageNamePair
		if err := rows.Scan(&p.First, &p.Second); err != nil {
			return nil, fmt.Errorf("scan match pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// NumMatches implements matching.Database.
func (s *FeaturesAndMatchesStore) NumMatches() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM image_pair_matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return n, nil
}

// RemoveAllMatches implements matching.Database.
func (s *FeaturesAndMatchesStore) RemoveAllMatches() error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`DELETE FROM image_pair_matches`)
		return err
	})
}

func (s *FeaturesAndMatchesStore) names(query string) ([]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query image names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan image name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
