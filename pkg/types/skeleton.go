package types

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// JointType identifies one of the 20 tracked skeletal joints
type JointType int

// JointType constants, in sensor order
const (
	HipCenter JointType = iota
	Spine
	ShoulderCenter
	Head
	ShoulderLeft
	ElbowLeft
	WristLeft
	HandLeft
	ShoulderRight
	ElbowRight
	WristRight
	HandRight
	HipLeft
	KneeLeft
	AnkleLeft
	FootLeft
	HipRight
	KneeRight
	AnkleRight
	FootRight

	JointCount = 20
)

var jointNames = [JointCount]string{
	"HipCenter", "Spine", "ShoulderCenter", "Head",
	"ShoulderLeft", "ElbowLeft", "WristLeft", "HandLeft",
	"ShoulderRight", "ElbowRight", "WristRight", "HandRight",
	"HipLeft", "KneeLeft", "AnkleLeft", "FootLeft",
	"HipRight", "KneeRight", "AnkleRight", "FootRight",
}

func (j JointType) String() string {
	if j < 0 || int(j) >= JointCount {
		return fmt.Sprintf("JointType(%d)", int(j))
	}
	return jointNames[j]
}

// Valid reports whether j is one of the 20 joint types.
func (j JointType) Valid() bool {
	return j >= 0 && int(j) < JointCount
}

// ParseJointType parses a joint name such as "ShoulderLeft".
func ParseJointType(s string) (JointType, error) {
	for i, name := range jointNames {
		if name == s {
			return JointType(i), nil
		}
	}
	return 0, fmt.Errorf("invalid joint type: %s", s)
}

// MarshalText encodes the joint by name.
func (j JointType) MarshalText() ([]byte, error) {
	if !j.Valid() {
		return nil, fmt.Errorf("invalid joint type: %d", int(j))
	}
	return []byte(j.String()), nil
}

// UnmarshalText decodes a joint name.
func (j *JointType) UnmarshalText(b []byte) error {
	v, err := ParseJointType(string(b))
	if err != nil {
		return err
	}
	*j = v
	return nil
}

// JointTrackingState is the per-joint confidence tier
type JointTrackingState int

// JointTrackingState constants
const (
	JointNotTracked JointTrackingState = iota
	JointInferred
	JointTracked
)

func (s JointTrackingState) String() string {
	switch s {
	case JointTracked:
		return "Tracked"
	case JointInferred:
		return "Inferred"
	default:
		return "NotTracked"
	}
}

// SkeletonTrackingState is the per-skeleton confidence tier
type SkeletonTrackingState int

// SkeletonTrackingState constants
const (
	SkeletonNotTracked SkeletonTrackingState = iota
	SkeletonPositionOnly
	SkeletonTracked
)

func (s SkeletonTrackingState) String() string {
	switch s {
	case SkeletonTracked:
		return "Tracked"
	case SkeletonPositionOnly:
		return "PositionOnly"
	default:
		return "NotTracked"
	}
}

// FrameEdges is a bit set of image edges a skeleton is clipped by
type FrameEdges uint8

// FrameEdges bits
const (
	EdgeRight FrameEdges = 1 << iota
	EdgeLeft
	EdgeTop
	EdgeBottom
)

// Has reports whether every bit of edge is set.
func (e FrameEdges) Has(edge FrameEdges) bool {
	return e&edge == edge
}

// Joint is a single tracked joint in sensor space (metres)
type Joint struct {
	Type          JointType
	TrackingState JointTrackingState
	Position      r3.Vector
}

// Skeleton is one tracked subject slot delivered by the sensor
type Skeleton struct {
	TrackingID    int                   // Stable while the subject stays visible
	TrackingState SkeletonTrackingState // Whole-skeleton tier
	Position      r3.Vector             // Body centre in sensor space
	Joints        [JointCount]Joint     // Indexed by JointType
	ClippedEdges  FrameEdges            // Edges the body is clipped by
}

// Joint returns the joint of the given type.
func (s *Skeleton) Joint(t JointType) Joint {
	if !t.Valid() {
		return Joint{Type: t}
	}
	return s.Joints[t]
}
