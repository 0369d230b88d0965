package geometry

import "github.com/colourskel/skeleton-server/pkg/types"

// Bone is a pair of anatomically adjacent joints
type Bone struct {
	A types.JointType
	B types.JointType
}

// Bones is the fixed drawing order: torso, left arm, right arm, left leg, right leg.
var Bones = [19]Bone{
	{types.Head, types.ShoulderCenter},
	{types.ShoulderCenter, types.ShoulderLeft},
	{types.ShoulderCenter, types.ShoulderRight},
	{types.ShoulderCenter, types.Spine},
	{types.Spine, types.HipCenter},
	{types.HipCenter, types.HipLeft},
	{types.HipCenter, types.HipRight},

	{types.ShoulderLeft, types.ElbowLeft},
	{types.ElbowLeft, types.WristLeft},
	{types.WristLeft, types.HandLeft},

	{types.ShoulderRight, types.ElbowRight},
	{types.ElbowRight, types.WristRight},
	{types.WristRight, types.HandRight},

	{types.HipLeft, types.KneeLeft},
	{types.KneeLeft, types.AnkleLeft},
	{types.AnkleLeft, types.FootLeft},

	{types.HipRight, types.KneeRight},
	{types.KneeRight, types.AnkleRight},
	{types.AnkleRight, types.FootRight},
}

// BoneStyle is the rendering tier of a bone
type BoneStyle int

// BoneStyle constants
const (
	BoneSuppressed BoneStyle = iota // Not drawn
	BoneInferred                    // Thin, at least one endpoint inferred
	BoneTracked                     // Thick, both endpoints tracked
)

func (s BoneStyle) String() string {
	switch s {
	case BoneTracked:
		return "tracked"
	case BoneInferred:
		return "inferred"
	default:
		return "suppressed"
	}
}

// ClassifyBone picks the tier for the bone between j0 and j1.
// Any NotTracked endpoint suppresses the bone, as do two Inferred endpoints.
func ClassifyBone(j0, j1 types.Joint) BoneStyle {
	s0, s1 := j0.TrackingState, j1.TrackingState
	switch {
	case s0 == types.JointNotTracked || s1 == types.JointNotTracked:
		return BoneSuppressed
	case s0 == types.JointInferred && s1 == types.JointInferred:
		return BoneSuppressed
	case s0 == types.JointTracked && s1 == types.JointTracked:
		return BoneTracked
	default:
		return BoneInferred
	}
}
