package entity

// Landmark indices of the 33-point body model used by the estimators.
const (
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftElbow     = 13
	LandmarkRightElbow    = 14
	LandmarkLeftWrist     = 15
	LandmarkRightWrist    = 16
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24
	LandmarkLeftKnee      = 25
	LandmarkRightKnee     = 26
	LandmarkLeftAnkle     = 27
	LandmarkRightAnkle    = 28

	PoseLandmarkCount = 33
)

// Connection joins two landmark indices with a drawn bone.
type Connection struct {
	From int
	To   int
}

// PoseConnections is the fixed skeleton: arms, shoulders, torso and legs.
var PoseConnections = []Connection{
	{LandmarkLeftShoulder, LandmarkLeftElbow},
	{LandmarkLeftElbow, LandmarkLeftWrist},
	{LandmarkRightShoulder, LandmarkRightElbow},
	{LandmarkRightElbow, LandmarkRightWrist},
	{LandmarkLeftShoulder, LandmarkRightShoulder},
	{LandmarkLeftHip, LandmarkRightHip},
	{LandmarkLeftShoulder, LandmarkLeftHip},
	{LandmarkRightShoulder, LandmarkRightHip},
	{LandmarkLeftHip, LandmarkLeftKnee},
	{LandmarkLeftKnee, LandmarkLeftAnkle},
	{LandmarkRightHip, LandmarkRightKnee},
	{LandmarkRightKnee, LandmarkRightAnkle},
}
