// Package pose provides body-pose estimation types and the lazily initialized pose source.
package pose

// Body landmark indices following the MediaPipe Pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// VisibilityFloor is the confidence a landmark must exceed to be treated as tracked.
const VisibilityFloor = 0.5

// Landmark is a single body keypoint normalized to the frame: X and Y lie in [0,1].
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Visible reports whether the landmark confidence exceeds VisibilityFloor.
func (l Landmark) Visible() bool {
	return l.Visibility > VisibilityFloor
}

// Landmarks is an ordered landmark set indexed by the constants above.
// A nil or short slice means the corresponding points were not produced.
type Landmarks []Landmark

// At returns the landmark at index i and whether it exists.
func (l Landmarks) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(l) {
		return Landmark{}, false
	}
	return l[i], true
}

// Mirror returns a copy with every X reflected as 1-X, matching a selfie-style view.
// The receiver is not modified.
func (l Landmarks) Mirror() Landmarks {
	if l == nil {
		return nil
	}
	mirrored := make(Landmarks, len(l))
	for i, lm := range l {
		lm.X = 1 - lm.X
		mirrored[i] = lm
	}
	return mirrored
}

// Wrists returns the left and right wrist landmarks that pass the visibility floor.
func (l Landmarks) Wrists() []Landmark {
	var wrists []Landmark
	for _, idx := range [...]int{LeftWrist, RightWrist} {
		if lm, ok := l.At(idx); ok && lm.Visible() {
			wrists = append(wrists, lm)
		}
	}
	return wrists
}

// Connection is a pair of landmark indices joined by a skeleton segment.
type Connection struct {
	From, To int
}

// Limb groups skeleton segments for colouring.
type Limb int

const (
	LimbTorso Limb = iota
	LimbArm
	LimbLeg
	LimbFoot
)

// Bone is a skeleton segment with its limb group.
type Bone struct {
	Connection
	Limb Limb
}

// Skeleton is the fixed connection list drawn over the video.
// Foot bones are only drawn when more than 31 landmarks are present.
var Skeleton = []Bone{
	{Connection{LeftShoulder, RightShoulder}, LimbTorso},
	{Connection{LeftShoulder, LeftHip}, LimbTorso},
	{Connection{RightShoulder, RightHip}, LimbTorso},
	{Connection{LeftHip, RightHip}, LimbTorso},

	{Connection{LeftShoulder, LeftElbow}, LimbArm},
	{Connection{LeftElbow, LeftWrist}, LimbArm},
	{Connection{RightShoulder, RightElbow}, LimbArm},
	{Connection{RightElbow, RightWrist}, LimbArm},

	{Connection{LeftHip, LeftKnee}, LimbLeg},
	{Connection{LeftKnee, LeftAnkle}, LimbLeg},
	{Connection{RightHip, RightKnee}, LimbLeg},
	{Connection{RightKnee, RightAnkle}, LimbLeg},

	{Connection{LeftAnkle, LeftHeel}, LimbFoot},
	{Connection{LeftHeel, LeftFootIndex}, LimbFoot},
	{Connection{LeftFootIndex, LeftAnkle}, LimbFoot},
	{Connection{RightAnkle, RightHeel}, LimbFoot},
	{Connection{RightHeel, RightFootIndex}, LimbFoot},
	{Connection{RightFootIndex, RightAnkle}, LimbFoot},
}

// VisibleBones returns the skeleton segments whose both ends are visible.
func (l Landmarks) VisibleBones() []Bone {
	var bones []Bone
	for _, b := range Skeleton {
		if b.Limb == LimbFoot && len(l) <= LeftFootIndex {
			continue
		}
		a, okA := l.At(b.From)
		c, okC := l.At(b.To)
		if okA && okC && a.Visible() && c.Visible() {
			bones = append(bones, b)
		}
	}
	return bones
}
