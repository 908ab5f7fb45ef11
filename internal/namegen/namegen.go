// Package namegen draws person names from fixed lists. All draws go
// through a caller-supplied random source so seeded worlds name their
// people deterministically.
package namegen

import "math/rand"

var maleFirst = []string{
	"James", "John", "Robert", "Michael", "William", "David", "Richard", "Joseph",
	"Thomas", "Charles", "Christopher", "Daniel", "Matthew", "Anthony", "Mark",
	"Donald", "Steven", "Paul", "Andrew", "Joshua", "Kenneth", "Kevin", "Brian",
	"George", "Edward", "Ronald", "Timothy", "Jason", "Jeffrey", "Ryan", "Jacob",
	"Gary", "Nicholas", "Eric", "Stephen", "Jonathan", "Larry", "Justin", "Scott",
	"Brandon", "Benjamin", "Samuel", "Frank", "Gregory", "Raymond", "Alexander",
	"Patrick", "Jack", "Dennis", "Jerry", "Tyler", "Aaron", "Jose", "Adam",
	"Henry", "Nathan", "Douglas", "Zachary", "Peter", "Kyle", "Walter", "Ethan",
	"Jeremy", "Harold", "Keith", "Christian", "Roger", "Noah", "Gerald", "Carl",
}

var femaleFirst = []string{
	"Mary", "Patricia", "Jennifer", "Linda", "Barbara", "Elizabeth", "Susan",
	"Jessica", "Sarah", "Karen", "Nancy", "Lisa", "Betty", "Margaret", "Sandra",
	"Ashley", "Dorothy", "Kimberly", "Emily", "Donna", "Michelle", "Carol",
	"Amanda", "Melissa", "Deborah", "Stephanie", "Rebecca", "Laura", "Sharon",
	"Cynthia", "Kathleen", "Amy", "Shirley", "Angela", "Helen", "Anna", "Brenda",
	"Pamela", "Nicole", "Emma", "Samantha", "Katherine", "Christine", "Debra",
	"Rachel", "Catherine", "Carolyn", "Janet", "Ruth", "Maria", "Heather",
	"Diane", "Virginia", "Julie", "Joyce", "Victoria", "Olivia", "Kelly",
	"Christina", "Lauren", "Joan", "Evelyn", "Judith", "Megan", "Cheryl", "Andrea",
}

var last = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson",
	"Thomas", "Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson",
	"White", "Harris", "Sanchez", "Clark", "Ramirez", "Lewis", "Robinson", "Walker",
	"Young", "Allen", "King", "Wright", "Scott", "Torres", "Nguyen", "Hill",
	"Flores", "Green", "Adams", "Nelson", "Baker", "Hall", "Rivera", "Campbell",
	"Mitchell", "Carter", "Roberts", "Gomez", "Phillips", "Evans", "Turner",
	"Diaz", "Parker", "Cruz", "Edwards", "Collins", "Reyes", "Stewart", "Morris",
	"Morales", "Murphy", "Cook", "Rogers", "Gutierrez", "Ortiz", "Morgan", "Cooper",
	"Peterson", "Bailey", "Reed", "Kelly", "Howard", "Ramos", "Kim", "Cox",
	"Ward", "Richardson", "Watson", "Brooks", "Chavez", "Wood", "James", "Bennett",
	"Gray", "Mendoza", "Ruiz", "Hughes", "Price", "Alvarez", "Castillo", "Sanders",
}

// First picks a first name for the given sex.
func First(rng *rand.Rand, male bool) string {
	if male {
		return maleFirst[rng.Intn(len(maleFirst))]
	}
	return femaleFirst[rng.Intn(len(femaleFirst))]
}

// Last picks a family name.
func Last(rng *rand.Rand) string {
	return last[rng.Intn(len(last))]
}
